package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"neswara/internal/article"
	"neswara/internal/user"
)

func (s *Server) listNews(w http.ResponseWriter, r *http.Request) {
	limit := min(queryInt(r, "limit", 20), 100)
	news, err := s.articles.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, news)
}

// openNews returns the article and counts the view.
func (s *Server) openNews(w http.ResponseWriter, r *http.Request) {
	a, err := s.articles.Open(r.Context(), mux.Vars(r)["slug"], r.Header.Get("X-User-ID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.articles.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, comments)
}

type commentRequest struct {
	Text     string `json:"text" validate:"required,max=2000"`
	UserName string `json:"userName" validate:"max=100"`
	ParentID string `json:"parentId"`
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.articles.AddComment(r.Context(), mux.Vars(r)["id"], article.CommentInput{
		Text:     req.Text,
		UserID:   actorID(r),
		UserName: req.UserName,
		ParentID: req.ParentID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

type editCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

func (s *Server) editComment(w http.ResponseWriter, r *http.Request) {
	var req editCommentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	isAdmin, err := s.users.IsAdmin(r.Context(), actorID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.articles.EditComment(r.Context(), actorID(r), isAdmin, mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	isAdmin, err := s.users.IsAdmin(r.Context(), actorID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.articles.DeleteComment(r.Context(), actorID(r), isAdmin, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tickerDisplay(w http.ResponseWriter, r *http.Request) {
	d, err := s.ticker.Display(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

type syncRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

// syncProfile always writes the caller's own profile.
func (s *Server) syncProfile(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.users.SyncProfile(r.Context(), user.Profile{
		ID:          actorID(r),
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	saved, err := s.articles.ListBookmarks(r.Context(), actorID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

type bookmarkRequest struct {
	ArticleID string `json:"articleId" validate:"required"`
}

func (s *Server) saveBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.articles.SaveBookmark(r.Context(), actorID(r), req.ArticleID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.articles.RemoveBookmark(r.Context(), actorID(r), mux.Vars(r)["articleId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.notifications.List(r.Context(), min(queryInt(r, "limit", 50), 200))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.MarkRead(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
