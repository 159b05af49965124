package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"foodphotographer/internal/httpx"
	"foodphotographer/internal/menu"
	"foodphotographer/internal/studio"
)

type sessionCtxKey struct{}

func sessionFromContext(ctx context.Context) (*studio.Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(*studio.Session)
	return sess, ok && sess != nil
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		sess, ok := s.store.Get(id)
		if !ok {
			httpx.WriteError(w, http.StatusNotFound, "Session not found.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionCtxKey{}, sess)))
	})
}

func (s *Server) sessionSnapshot(id string) (studio.State, bool) {
	sess, ok := s.store.Get(id)
	if !ok {
		return studio.State{}, false
	}
	return sess.Snapshot(), true
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"session": sess.Snapshot(),
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": sess.Snapshot(),
	})
}

func (s *Server) handleMenuSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())

	var req struct {
		MenuText string `json:"menu_text"`
		Style    string `json:"style"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	style, err := menu.ParseStyle(req.Style)
	if err != nil {
		s.writeStudioError(w, err)
		return
	}

	if _, err := sess.Submit(r.Context(), req.MenuText, style); err != nil {
		s.log.Info("menu submission rejected", zap.String("session", sess.ID()), zap.Error(err))
		s.writeStudioError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": sess.Snapshot(),
	})
}

func (s *Server) handleDishEdit(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	dishID := strings.TrimSpace(chi.URLParam(r, "dishId"))

	var req struct {
		Instruction string `json:"instruction"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	dish, err := sess.Edit(r.Context(), dishID, req.Instruction)
	if err != nil {
		s.log.Info("dish edit rejected", zap.String("session", sess.ID()), zap.String("dish_id", dishID), zap.Error(err))
		s.writeStudioError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"dish":    dish,
	})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	limit := int64(s.cfg.MenuMaxBytes)
	if limit > 0 {
		// Room for the JSON envelope and escaping around the menu text.
		limit = limit*2 + 1024
	}
	err := httpx.ReadJSON(w, r, limit, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "The menu is too long.")
	default:
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body.")
	}
	return false
}

// writeStudioError maps session and client errors to a status code and a message
// that is safe to show in the browser.
func (s *Server) writeStudioError(w http.ResponseWriter, err error) {
	var genErr *menu.GenerationError
	switch {
	case errors.Is(err, menu.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, menu.UserMessage(err))
	case errors.Is(err, studio.ErrDishNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, studio.ErrSubmissionInProgress),
		errors.Is(err, studio.ErrEditInProgress),
		errors.Is(err, studio.ErrDishNotReady):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, menu.ErrEdit):
		httpx.WriteError(w, http.StatusBadGateway, studio.EditFailurePrefix+menu.UserMessage(err))
	case errors.Is(err, menu.ErrExtraction), errors.As(err, &genErr):
		httpx.WriteError(w, http.StatusBadGateway, menu.UserMessage(err))
	default:
		s.log.Error("unexpected studio error", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, menu.UserMessage(err))
	}
}
