// Package server exposes the tracer over HTTP. A POST to /exec carrying a
// program returns its trace as a JSON array.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/pytutor/internal/cache"
	"github.com/phobologic/pytutor/internal/config"
	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/querylog"
	"github.com/phobologic/pytutor/internal/sandbox"
)

// Options wires a Server. Cache and QueryLog may be nil.
type Options struct {
	Config   config.Config
	Logger   zerolog.Logger
	Cache    *cache.Cache
	QueryLog *querylog.Log
}

// Server handles trace requests.
type Server struct {
	cfg   config.Config
	log   zerolog.Logger
	cache *cache.Cache
	qlog  *querylog.Log
	now   func() time.Time
}

// New returns a server using opts.
func New(opts Options) *Server {
	return &Server{
		cfg:   opts.Config,
		log:   opts.Logger,
		cache: opts.Cache,
		qlog:  opts.QueryLog,
		now:   time.Now,
	}
}

// execRequest is the body the front end posts.
type execRequest struct {
	UserScript *string `json:"user_script"`
	Request    string  `json:"request"`
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /exec", s.handleExec)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "ok")
	})
	return s.withRequestID(mux)
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := s.now()
		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", s.now().Sub(start)).
			Msg("request")
	})
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	script, err := readScript(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "program too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	trace := s.trace(r.Context(), script)

	s.qlog.Record(r.Context(), querylog.Entry{
		RequestID: RequestID(r.Context()),
		Time:      s.now(),
		RemoteIP:  remoteIP(r),
		UserAgent: r.UserAgent(),
		Script:    script,
		HadError:  trace.HadError(),
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(trace); err != nil {
		s.log.Warn().Err(err).Str("request_id", RequestID(r.Context())).Msg("writing trace")
	}
}

// trace runs script, consulting the cache first.
func (s *Server) trace(ctx context.Context, script string) model.Trace {
	log := s.log.With().Str("request_id", RequestID(ctx)).Logger()
	key, err := cache.Key(script, cache.Params{
		MaxSteps:  s.cfg.MaxSteps,
		StableIDs: s.cfg.StableIDs,
		MaxDepth:  s.cfg.MaxDepth,
	})
	if err != nil {
		log.Warn().Err(err).Msg("cache key")
	} else if cached, err := s.cache.Get(key); err == nil {
		log.Debug().Str("key", key).Msg("cache hit")
		return cached
	} else if !errors.Is(err, cache.ErrNotCached) {
		log.Warn().Err(err).Msg("cache read")
	}

	if s.cfg.Server.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.Timeout)
		defer cancel()
	}
	trace := sandbox.Run(ctx, script, sandbox.Config{
		MaxSteps:  s.cfg.MaxSteps,
		StableIDs: s.cfg.StableIDs,
		MaxDepth:  s.cfg.MaxDepth,
		Logger:    log,
	})
	if ctx.Err() != nil {
		return trace
	}
	if key != "" {
		if err := s.cache.Put(key, trace); err != nil {
			log.Warn().Err(err).Msg("cache write")
		}
	}
	return trace
}

// readScript extracts the program from a JSON body or a form field.
func readScript(r *http.Request) (string, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req execRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("decoding request: %w", err)
		}
		if req.Request != "" && req.Request != "execute" {
			return "", fmt.Errorf("unknown request %q", req.Request)
		}
		if req.UserScript == nil {
			return "", errors.New("missing user_script")
		}
		return *req.UserScript, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("decoding form: %w", err)
	}
	if !r.PostForm.Has("user_script") {
		return "", errors.New("missing user_script")
	}
	return r.PostForm.Get("user_script"), nil
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("serving")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
