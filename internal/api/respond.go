package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"neswara/internal/activity"
	"neswara/internal/article"
	"neswara/internal/dashboard"
	"neswara/internal/notification"
	"neswara/internal/ticker"
	"neswara/internal/user"
)

var (
	errUnauthenticated = errors.New("missing X-User-ID header")
	errForbidden       = errors.New("admin access required")
	errBadRequest      = errors.New("malformed request")
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error          string `json:"error"`
	SuggestedSpeed int    `json:"suggestedSpeed,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write JSON response")
	}
}

// decode reads a JSON body and runs struct validation on it.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden),
		errors.Is(err, article.ErrPermissionDenied),
		errors.Is(err, user.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, article.ErrNotFound),
		errors.Is(err, article.ErrCommentNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, article.ErrSlugConflict):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, article.ErrInvalidInput),
		errors.Is(err, article.ErrInvalidParent),
		errors.Is(err, ticker.ErrEmptyText),
		errors.Is(err, ticker.ErrInvalidAnimation),
		errors.Is(err, ticker.ErrSpeedOutOfRange),
		errors.Is(err, notification.ErrInvalidInput),
		errors.Is(err, notification.ErrInvalidImage),
		errors.Is(err, user.ErrInvalidProfile),
		errors.Is(err, dashboard.ErrInvalidFilter),
		errors.Is(err, dashboard.ErrInvalidRange):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// fail maps err to a status. Permission and store failures also leave an error record
// in the activity log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var se *ticker.SpeedError
	if errors.As(err, &se) {
		body.SuggestedSpeed = se.Suggested
	}

	switch status {
	case http.StatusForbidden, http.StatusBadGateway:
		s.logger.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		s.activity.Log(r.Context(), actorID(r), activity.ActionError, map[string]any{
			"path":   r.URL.Path,
			"status": status,
			"error":  err.Error(),
		})
	}
	if status == http.StatusBadGateway {
		body.Error = "document store unavailable: " + err.Error()
	}

	s.writeJSON(w, status, body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
