package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/async"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

const maxBodyBytes = 4 << 20

type Server struct {
	router        *chi.Mux
	uc            *usecase.UseCases
	pool          *async.Pool
	webhookSecret string
}

type Options func(*Server)

// WithWebhookSecret requires signed ingestion requests
func WithWebhookSecret(secret string) Options {
	return func(s *Server) {
		s.webhookSecret = secret
	}
}

// WithProcessPool bounds background conversation processing
func WithProcessPool(pool *async.Pool) Options {
	return func(s *Server) {
		s.pool = pool
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = async.NewPool(8)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.webhookSecret != "" {
					r.Use(WebhookSignatureMiddleware(s.webhookSecret))
				}
				r.Post("/", s.ingestConversation)
			})
			r.Get("/{conversationID}", s.getConversation)
			r.Get("/{conversationID}/dispatches", s.listDispatches)
		})

		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.Get("/context", s.getContext)
			r.Get("/memories", s.listMemories)
			r.Post("/memories", s.addMemory)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
