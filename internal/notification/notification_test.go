package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neswara/internal/activity"
	"neswara/internal/store"
)

func TestCheckImage(t *testing.T) {
	assert.NoError(t, checkImage(""))
	assert.NoError(t, checkImage("https://i.ibb.co/abc/foto.jpg"))
	assert.NoError(t, checkImage("data:image/png;base64,iVBORw0KGgo="))
	assert.ErrorIs(t, checkImage("http://i.ibb.co/abc/foto.jpg"), ErrInvalidImage)
	assert.ErrorIs(t, checkImage("ftp://x"), ErrInvalidImage)
	assert.Error(t, checkImage("data:image/png;base64,"+strings.Repeat("A", maxInlineImage)))
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory(), activity.Nop{}, zerolog.Nop())

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	first, err := svc.Create(ctx, "admin", Input{Title: "Selamat datang", Message: "Halo pembaca"})
	require.NoError(t, err)
	assert.Equal(t, "info", first.Type)

	clock = base.Add(time.Hour)
	second, err := svc.Create(ctx, "admin", Input{Title: "Berita baru", Message: "Baca sekarang", Type: "article", ArticleID: "a1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "admin", Input{Title: "", Message: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, "admin", Input{Title: "x", Message: "y", Type: "spam"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "a1", list[0].ArticleID)

	require.NoError(t, svc.MarkRead(ctx, first.ID))
	require.NoError(t, svc.MarkRead(ctx, "missing"))

	list, err = svc.List(ctx, 0)
	require.NoError(t, err)
	assert.True(t, list[1].Read)
	assert.False(t, list[0].Read)

	require.NoError(t, svc.Delete(ctx, "admin", first.ID))
	require.NoError(t, svc.Delete(ctx, "admin", first.ID))

	list, err = svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
