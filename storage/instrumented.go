package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wolfeidau/package-index/telemetry"
)

// Instrumented wraps a Store with metrics recording.
type Instrumented struct {
	store Store
	name  string
}

// NewInstrumented creates a new instrumented store wrapper.
func NewInstrumented(s Store, name string) *Instrumented {
	return &Instrumented{store: s, name: name}
}

func (is *Instrumented) Write(ctx context.Context, name string, r io.Reader, overwrite bool) (WriteResult, error) {
	start := time.Now()
	res, err := is.store.Write(ctx, name, r, overwrite)
	telemetry.RecordBackendOp(ctx, is.name, "write", outcomeFromError(err), time.Since(start), res.Size)
	return res, err
}

func (is *Instrumented) Open(ctx context.Context, name string) (File, error) {
	start := time.Now()
	f, err := is.store.Open(ctx, name)
	telemetry.RecordBackendOp(ctx, is.name, "open", outcomeFromError(err), time.Since(start), 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (is *Instrumented) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := is.store.Delete(ctx, name)
	telemetry.RecordBackendOp(ctx, is.name, "delete", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (is *Instrumented) Exists(ctx context.Context, name string) (bool, error) {
	start := time.Now()
	exists, err := is.store.Exists(ctx, name)
	telemetry.RecordBackendOp(ctx, is.name, "exists", outcomeFromError(err), time.Since(start), 0)
	return exists, err
}

// Unwrap returns the underlying store.
func (is *Instrumented) Unwrap() Store {
	return is.store
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExists):
		return "exists"
	case errors.Is(err, ErrInvalidName):
		return "invalid"
	default:
		return "error"
	}
}

var _ Store = (*Instrumented)(nil)
