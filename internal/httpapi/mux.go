package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mijia-gateway/internal/gateway"
)

func NewMux(conn ConnectionChecker, tracker *gateway.Tracker, staleAfter time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, conn)
	registerDevices(mux, tracker, staleAfter)
	return mux
}

// Serve runs the server until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           requestLogger(slog.Default(), h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("http: stopped")
		return nil
	}
}
