package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"foodphotographer/internal/httpx"
	"foodphotographer/internal/lib/imagetype"
	"foodphotographer/internal/menu"
)

func (s *Server) handleDishImage(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	dishID := strings.TrimSpace(chi.URLParam(r, "dishId"))

	dish, ok := sess.Dish(dishID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "Dish not found.")
		return
	}
	if dish.Status != menu.StatusReady || !dish.HasImage() {
		httpx.WriteError(w, http.StatusNotFound, "Image not available.")
		return
	}

	// Edits bump ImageVersion, so the pair identifies the bytes.
	etag := fmt.Sprintf(`"%s-%d"`, dish.ID, dish.ImageVersion)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if inm := r.Header.Get("If-None-Match"); strings.TrimSpace(inm) == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if isTruthy(r.URL.Query().Get("download")) {
		filename := slugify(dish.Name) + imagetype.Ext(dish.Image.MIMEType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.Header().Set("Content-Type", dish.Image.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(dish.Image.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(dish.Image.Data)
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// slugify turns a dish name into a lowercase ASCII file name.
func slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			dash = false
		case sb.Len() > 0 && !dash:
			sb.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(sb.String(), "-")
	if len(out) > 80 {
		out = strings.TrimSuffix(out[:80], "-")
	}
	if out == "" {
		return "dish"
	}
	return out
}
