package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neswara/internal/dashboard"
	"neswara/internal/store"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/dashboard/ws"
	header := http.Header{}
	header.Set("X-User-ID", userID)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": msgType, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func TestDashboardSocket(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = h.hub.Run(ctx)
	}()

	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	conn := dial(t, srv, "admin")

	// the current state arrives on connect
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeState, msg.Type)
	var st dashboard.State
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, uint64(3), st.Revisions[store.News])

	h.dashboard.states <- dashboard.State{Revisions: map[string]uint64{store.News: 4}}
	msg = readMessage(t, conn)
	require.Equal(t, MessageTypeState, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, uint64(4), st.Revisions[store.News])

	send(t, conn, MessageTypePing, nil)
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	send(t, conn, MessageTypeRange, rangeRequest{Days: 14})
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	send(t, conn, MessageTypeFilter, dashboard.Filter{Author: "Redaksi"})
	send(t, conn, MessageTypeRange, rangeRequest{Days: 365})
	assert.Eventually(t, func() bool {
		filters, ranges := h.dashboard.received()
		return len(filters) == 1 && len(ranges) == 1 && ranges[0] == 365
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-hubDone
	assert.Equal(t, 0, h.hub.ClientCount())

	// the server closes the socket once the hub stops
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDashboardSocket_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/dashboard/ws"
	header := http.Header{}
	header.Set("X-User-ID", "reader")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
