package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type Option func(*Server) error

func Address(address string) Option {
	return func(s *Server) error {
		s.h1.Addr = address
		return nil
	}
}

func Handle(handler http.Handler) Option {
	return func(s *Server) error {
		s.handler = handler
		return nil
	}
}

func RequestLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.requestLogger = logger
		return nil
	}
}

type Server struct {
	logger        *slog.Logger
	requestLogger *slog.Logger

	handler http.Handler
	h1      *http.Server
}

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		logger:        slog.Default(),
		requestLogger: nil,
		handler:       http.DefaultServeMux,
		h1:            &http.Server{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.requestLogger != nil {
		s.handler = s.logRequest(s.handler)
	}
	s.h1.Handler = s.handler
	return s, nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("serving HTTP", "address", s.h1.Addr)
		err := s.h1.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return s.h1.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestLogger.Info("got request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
