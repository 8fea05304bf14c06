package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"neswara/internal/article"
	"neswara/internal/dashboard"
	"neswara/internal/notification"
	"neswara/internal/ticker"
)

func (s *Server) createNews(w http.ResponseWriter, r *http.Request) {
	var in article.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.articles.Create(r.Context(), actorID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

// updateNews answers 204 when the article no longer exists.
func (s *Server) updateNews(w http.ResponseWriter, r *http.Request) {
	var in article.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.articles.Update(r.Context(), actorID(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if a == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteNews(w http.ResponseWriter, r *http.Request) {
	if err := s.articles.Delete(r.Context(), actorID(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dashboardState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboard.Current())
}

func (s *Server) dashboardFilter(w http.ResponseWriter, r *http.Request) {
	var f dashboard.Filter
	if err := decode(r, &f); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.dashboard.SetFilter(r.Context(), f); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type rangeRequest struct {
	Days int `json:"days" validate:"required"`
}

func (s *Server) dashboardRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.dashboard.SetRange(r.Context(), req.Days); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listTicker(w http.ResponseWriter, r *http.Request) {
	items, err := s.ticker.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) createTicker(w http.ResponseWriter, r *http.Request) {
	var in ticker.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.ticker.Create(r.Context(), actorID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, it)
}

func (s *Server) updateTicker(w http.ResponseWriter, r *http.Request) {
	var in ticker.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.ticker.Update(r.Context(), actorID(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if it == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) toggleTicker(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.ticker.SetActive(r.Context(), actorID(r), mux.Vars(r)["id"], req.Active)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if it == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

func (s *Server) deleteTicker(w http.ResponseWriter, r *http.Request) {
	if err := s.ticker.Delete(r.Context(), actorID(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createNotification(w http.ResponseWriter, r *http.Request) {
	var in notification.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.notifications.Create(r.Context(), actorID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, n)
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.Delete(r.Context(), actorID(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.activity.List(r.Context(), min(queryInt(r, "limit", 100), 1000))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type clearedResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) clearLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.activity.Clear(r.Context(), actorID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clearedResponse{Deleted: n})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

type adminRequest struct {
	Admin bool `json:"admin"`
}

func (s *Server) setAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.users.SetAdmin(r.Context(), actorID(r), mux.Vars(r)["id"], req.Admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}
