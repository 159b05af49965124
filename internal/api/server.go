package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"foodphotographer/internal/config"
	"foodphotographer/internal/httpx"
	"foodphotographer/internal/menu"
	"foodphotographer/internal/studio"
)

type Server struct {
	cfg    config.Config
	store  *studio.Store
	hub    *sessionHub
	access *accessGate
	log    *zap.Logger
}

func NewServer(cfg config.Config, models studio.Models, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	hub := newSessionHub(log.Named("ws"))
	s := &Server{
		cfg:    cfg,
		hub:    hub,
		access: newAccessGate(cfg.AccessPasswordHash),
		log:    log.Named("api"),
	}
	s.store = studio.NewStore(models, hub, cfg.SessionIdleTimeout, log)
	hub.snapshot = s.sessionSnapshot
	return s
}

// RunJanitor drops idle sessions until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	s.store.RunJanitor(ctx)
}

// Close disconnects every WebSocket client and waits for running generations.
func (s *Server) Close() {
	s.hub.closeAll()
	s.store.Wait()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"sessions": s.store.Len(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, http.StatusNotFound, "Not found")
		})
		r.Get("/styles", s.handleStyles)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess)

			r.Post("/sessions", s.handleSessionCreate)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Use(s.withSession)

				r.Get("/", s.handleSessionGet)
				r.Post("/menu", s.handleMenuSubmit)
				r.Post("/dishes/{dishId}/edit", s.handleDishEdit)
				r.Get("/dishes/{dishId}/image", s.handleDishImage)
				r.Get("/contact-sheet.pdf", s.handleContactSheet)
				r.Get("/ws", s.handleSessionWS)
			})
		})
	})

	if strings.TrimSpace(s.cfg.StaticDir) != "" {
		r.Handle("/*", SPAHandler(s.cfg.StaticDir))
	}

	return s.corsHandler().Handler(r)
}

func (s *Server) corsHandler() *cors.Cors {
	origins := s.cfg.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Access-Token"},
		ExposedHeaders:   []string{"Content-Disposition", "ETag"},
		AllowCredentials: !allowAll,
		MaxAge:           int((12 * time.Hour).Seconds()),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	type styleOut struct {
		ID         menu.Style `json:"id"`
		Label      string     `json:"label"`
		Descriptor string     `json:"descriptor"`
		Default    bool       `json:"default"`
	}
	styles := menu.Styles()
	out := make([]styleOut, 0, len(styles))
	for _, st := range styles {
		out = append(out, styleOut{
			ID:         st,
			Label:      st.Label(),
			Descriptor: st.Descriptor(),
			Default:    st == menu.DefaultStyle,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"styles":  out,
	})
}

// accessGate checks the shared password from ACCESS_PASSWORD_HASH. Tokens that
// passed bcrypt once are remembered by digest so later requests skip the hash.
type accessGate struct {
	hash []byte

	mu       sync.RWMutex
	verified map[string]struct{}
}

func newAccessGate(hash string) *accessGate {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil
	}
	return &accessGate{hash: []byte(hash), verified: map[string]struct{}{}}
}

func (g *accessGate) allow(token string) bool {
	if g == nil {
		return true
	}
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	g.mu.RLock()
	_, ok := g.verified[key]
	g.mu.RUnlock()
	if ok {
		return true
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(token)); err != nil {
		return false
	}
	g.mu.Lock()
	g.verified[key] = struct{}{}
	g.mu.Unlock()
	return true
}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	// Without ACCESS_PASSWORD_HASH the API is open.
	if s.access == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-Access-Token"))
		if token == "" {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			// Browsers cannot set headers on WebSocket upgrades.
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}

		if !s.access.allow(token) {
			s.log.Info("access denied", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func SPAHandler(staticDir string) http.Handler {
	fsys := os.DirFS(staticDir)
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		// Hashed build assets never change.
		if strings.HasPrefix(path, "assets/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}

		if info, err := fs.Stat(fsys, path); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}

		// Client-side routes fall back to the entrypoint.
		r.URL.Path = "/"
		files.ServeHTTP(w, r)
	})
}
