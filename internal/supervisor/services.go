package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"devlink-realtime/pkg/logger"

	"github.com/thejerf/suture/v4"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server until its context is cancelled, then
// shuts it down gracefully.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return "http-server"
}

type critical struct {
	svc suture.Service
}

// Critical wraps svc so that any exit other than cancellation, including a
// panic, terminates the supervisor tree instead of restarting svc. State held
// by svc cannot survive a restart.
func Critical(svc suture.Service) suture.Service {
	return &critical{svc: svc}
}

func (c *critical) Serve(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Critical service %s panicked: %v", c, r)
			err = suture.ErrTerminateSupervisorTree
		}
	}()

	err = c.svc.Serve(ctx)
	if ctx.Err() != nil {
		return err
	}
	logger.Error("Critical service %s exited: %v", c, err)
	return suture.ErrTerminateSupervisorTree
}

func (c *critical) String() string {
	if s, ok := c.svc.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c.svc)
}
