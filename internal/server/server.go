package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"accessdash/internal/limits"
)

const DefaultGracefulTimeout = 10 * time.Second

// Server owns the public HTTP listener and, when configured, the gRPC admin
// listener.
type Server struct {
	HTTPAddr  string
	AdminAddr string

	httpServer      *http.Server
	grpcServer      *grpc.Server
	httpLn          net.Listener
	adminLn         net.Listener
	gracefulTimeout time.Duration
	stoppers        []Stopper
	logger          *zap.Logger
	shutdownOnce    sync.Once
	shutdownErr     error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits          limits.Limits
	GracefulTimeout time.Duration
	// Stoppers run first on shutdown, before the listeners drain.
	Stoppers []Stopper
	Logger   *zap.Logger
}

func StartServers(handler http.Handler, httpAddr string, grpcServer *grpc.Server, adminAddr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if httpAddr == "" {
		return nil, errors.New("listen address is required")
	}

	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	gracefulTimeout := options.GracefulTimeout
	if gracefulTimeout <= 0 {
		gracefulTimeout = DefaultGracefulTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
		ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
		ReadTimeout:       limitConfig.ReadTimeout,
		WriteTimeout:      limitConfig.WriteTimeout,
		IdleTimeout:       limitConfig.IdleTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	var adminLn net.Listener
	if grpcServer != nil && adminAddr != "" {
		ln, err := net.Listen("tcp", adminAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, err
		}
		adminLn = ln
	}

	go serveHTTP(httpSrv, httpLn, logger)
	if adminLn != nil {
		go serveGRPC(grpcServer, adminLn, logger)
	}

	return &Server{
		HTTPAddr:        addrString(httpLn),
		AdminAddr:       addrString(adminLn),
		httpServer:      httpSrv,
		grpcServer:      grpcServer,
		httpLn:          httpLn,
		adminLn:         adminLn,
		gracefulTimeout: gracefulTimeout,
		stoppers:        options.Stoppers,
		logger:          logger,
	}, nil
}

func serveHTTP(server *http.Server, ln net.Listener, logger *zap.Logger) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", zap.Error(err))
	}
}

func serveGRPC(server *grpc.Server, ln net.Listener, logger *zap.Logger) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("admin server error", zap.Error(err))
	}
}

func addrString(ln net.Listener) string {
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	gracefulCtx, gracefulCancel := context.WithTimeout(context.Background(), s.gracefulTimeout)
	defer gracefulCancel()

	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(gracefulCtx); err != nil {
			s.logger.Warn("stopper failed", zap.Error(err))
		}
	}

	grpcDone := make(chan struct{})
	if s.adminLn != nil {
		go func() {
			s.grpcServer.GracefulStop()
			close(grpcDone)
		}()
	} else {
		close(grpcDone)
	}

	var firstErr error
	if err := s.httpServer.Shutdown(gracefulCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		firstErr = err
	}

	select {
	case <-grpcDone:
	case <-gracefulCtx.Done():
		s.grpcServer.Stop()
		<-grpcDone
	}

	if gracefulCtx.Err() == nil {
		return firstErr
	}
	_ = s.httpServer.Close()
	if firstErr != nil {
		return firstErr
	}
	return gracefulCtx.Err()
}
