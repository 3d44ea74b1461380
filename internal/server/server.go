package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ootdStylist/internal/stylist"
	"ootdStylist/pkg/logger"
)

// Options tunes the HTTP server.
type Options struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Static serves the frontend at /. Nil disables it.
	Static http.Handler
	// Media serves locally shared snapshots under MediaPrefix. Nil disables it.
	Media       http.Handler
	MediaPrefix string
}

// New constructs the HTTP server with routes and middleware.
func New(opts Options, sessions stylist.Handler) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  httpLogger{},
		NoColor: true,
	}))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessions.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.Get)
				r.Delete("/", sessions.Delete)
				r.Post("/upload", sessions.Upload)
				r.Post("/rerun", sessions.Rerun)
				r.Post("/reset", sessions.Reset)
				r.Get("/events", sessions.StreamEvents)
				r.Get("/snapshot", sessions.Snapshot)
				r.Post("/share", sessions.Share)
			})
		})
	})

	if opts.Media != nil && opts.MediaPrefix != "" {
		router.Handle(opts.MediaPrefix+"/*", http.StripPrefix(opts.MediaPrefix, opts.Media))
	}
	if opts.Static != nil {
		router.Handle("/*", opts.Static)
	}

	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      router,
		ReadTimeout:  orDefault(opts.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(opts.WriteTimeout, 3*time.Minute),
		IdleTimeout:  orDefault(opts.IdleTimeout, 60*time.Second),
	}

	logger.Infof("server ready on %s", srv.Addr)
	return srv
}

// httpLogger adapts pkg/logger to chi's request logger.
type httpLogger struct{}

func (httpLogger) Print(v ...interface{}) {
	logger.WithFields(nil).Info(v...)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
