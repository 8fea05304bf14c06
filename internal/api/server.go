// Package api exposes the site and admin operations over HTTP and pushes live dashboard
// state to admin browsers over a WebSocket.
//
// Identity comes from the X-User-ID header set by the authentication proxy in front of
// this service; admin routes additionally require isAdmin on that user's profile.
package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"neswara/internal/activity"
	"neswara/internal/article"
	"neswara/internal/dashboard"
	"neswara/internal/metrics"
	"neswara/internal/notification"
	"neswara/internal/ticker"
	"neswara/internal/user"
)

// Dashboard is the part of the aggregation pipeline the HTTP layer drives.
type Dashboard interface {
	Current() dashboard.State
	Watch() (<-chan dashboard.State, func())
	SetFilter(ctx context.Context, f dashboard.Filter) error
	SetRange(ctx context.Context, days int) error
}

type Deps struct {
	Articles      *article.Repository
	Ticker        *ticker.Controller
	Users         *user.Service
	Notifications *notification.Service
	Activity      *activity.Logger
	Dashboard     Dashboard
	Hub           *Hub
}

type Server struct {
	articles      *article.Repository
	ticker        *ticker.Controller
	users         *user.Service
	notifications *notification.Service
	activity      *activity.Logger
	dashboard     Dashboard
	hub           *Hub
	logger        zerolog.Logger
}

func NewServer(d Deps, logger zerolog.Logger) *Server {
	return &Server{
		articles:      d.Articles,
		ticker:        d.Ticker,
		users:         d.Users,
		notifications: d.Notifications,
		activity:      d.Activity,
		dashboard:     d.Dashboard,
		hub:           d.Hub,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	pub := r.PathPrefix("/api").Subrouter()
	pub.HandleFunc("/news", s.listNews).Methods(http.MethodGet)
	pub.HandleFunc("/news/{slug}", s.openNews).Methods(http.MethodGet)
	pub.HandleFunc("/news/{id}/comments", s.listComments).Methods(http.MethodGet)
	pub.HandleFunc("/news/{id}/comments", s.authenticated(s.addComment)).Methods(http.MethodPost)
	pub.HandleFunc("/comments/{id}", s.authenticated(s.editComment)).Methods(http.MethodPut)
	pub.HandleFunc("/comments/{id}", s.authenticated(s.deleteComment)).Methods(http.MethodDelete)
	pub.HandleFunc("/ticker", s.tickerDisplay).Methods(http.MethodGet)
	pub.HandleFunc("/users/sync", s.authenticated(s.syncProfile)).Methods(http.MethodPost)
	pub.HandleFunc("/bookmarks", s.authenticated(s.listBookmarks)).Methods(http.MethodGet)
	pub.HandleFunc("/bookmarks", s.authenticated(s.saveBookmark)).Methods(http.MethodPost)
	pub.HandleFunc("/bookmarks/{articleId}", s.authenticated(s.removeBookmark)).Methods(http.MethodDelete)
	pub.HandleFunc("/notifications", s.listNotifications).Methods(http.MethodGet)
	pub.HandleFunc("/notifications/{id}/read", s.markNotificationRead).Methods(http.MethodPost)

	admin := pub.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/news", s.createNews).Methods(http.MethodPost)
	admin.HandleFunc("/news/{id}", s.updateNews).Methods(http.MethodPut)
	admin.HandleFunc("/news/{id}", s.deleteNews).Methods(http.MethodDelete)
	admin.HandleFunc("/dashboard", s.dashboardState).Methods(http.MethodGet)
	admin.HandleFunc("/dashboard/filter", s.dashboardFilter).Methods(http.MethodPost)
	admin.HandleFunc("/dashboard/range", s.dashboardRange).Methods(http.MethodPost)
	admin.HandleFunc("/dashboard/ws", s.dashboardSocket).Methods(http.MethodGet)
	admin.HandleFunc("/ticker", s.listTicker).Methods(http.MethodGet)
	admin.HandleFunc("/ticker", s.createTicker).Methods(http.MethodPost)
	admin.HandleFunc("/ticker/{id}", s.updateTicker).Methods(http.MethodPut)
	admin.HandleFunc("/ticker/{id}/active", s.toggleTicker).Methods(http.MethodPost)
	admin.HandleFunc("/ticker/{id}", s.deleteTicker).Methods(http.MethodDelete)
	admin.HandleFunc("/notifications", s.createNotification).Methods(http.MethodPost)
	admin.HandleFunc("/notifications/{id}", s.deleteNotification).Methods(http.MethodDelete)
	admin.HandleFunc("/logs", s.listLogs).Methods(http.MethodGet)
	admin.HandleFunc("/logs", s.clearLogs).Methods(http.MethodDelete)
	admin.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/admin", s.setAdmin).Methods(http.MethodPut)

	return r
}

type actorKey struct{}

func actorID(r *http.Request) string {
	if id, ok := r.Context().Value(actorKey{}).(string); ok {
		return id
	}
	return r.Header.Get("X-User-ID")
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			s.fail(w, r, errUnauthenticated)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, id)))
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			s.fail(w, r, errUnauthenticated)
			return
		}
		ok, err := s.users.IsAdmin(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			s.fail(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working behind the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		observeRequest(r.Method, route, rec.status, elapsed)

		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

func observeRequest(method, route string, status int, elapsed time.Duration) {
	metrics.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
