// internal/app/shutdown.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CloseFunc releases one resource within ctx.
type CloseFunc func(ctx context.Context) error

type namedCloser struct {
	name  string
	close CloseFunc
}

// Closers releases registered resources in reverse order of registration.
type Closers struct {
	mu      sync.Mutex
	logger  *zap.Logger
	closers []namedCloser
}

// NewClosers creates an empty shutdown list.
func NewClosers(logger *zap.Logger) *Closers {
	return &Closers{logger: logger}
}

// Add registers a resource for shutdown.
func (c *Closers) Add(name string, fn CloseFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closers = append(c.closers, namedCloser{name: name, close: fn})
	c.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// Shutdown closes every resource, last registered first, and joins their
// errors. A resource still closing when ctx expires is reported and
// skipped.
func (c *Closers) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	c.logger.Info("Starting graceful shutdown", zap.Int("services", len(closers)))

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		s := closers[i]

		done := make(chan error, 1)
		go func() { done <- s.close(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Error("Failed to shutdown service", zap.String("service", s.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			c.logger.Debug("Service shutdown complete", zap.String("service", s.name))
		case <-ctx.Done():
			c.logger.Error("Shutdown timeout for service", zap.String("service", s.name))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, ctx.Err()))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("Graceful shutdown completed")
	return nil
}
