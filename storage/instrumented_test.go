package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstrumented_Delegates(t *testing.T) {
	fs := newTestFilesystem(t)
	is := NewInstrumented(fs, "filesystem")
	ctx := context.Background()

	res, err := is.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("hello"), false)
	require.NoError(t, err)
	require.EqualValues(t, 5, res.Size)

	_, err = is.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("hello"), false)
	require.ErrorIs(t, err, ErrExists)

	exists, err := is.Exists(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	require.True(t, exists)

	f, err := is.Open(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.NoError(t, f.Close())

	require.NoError(t, is.Delete(ctx, "widget-1.0.tar.gz"))
	require.ErrorIs(t, is.Delete(ctx, "widget-1.0.tar.gz"), ErrNotFound)

	_, err = is.Open(ctx, "widget-1.0.tar.gz")
	require.ErrorIs(t, err, ErrNotFound)

	require.Same(t, fs, is.Unwrap())
}

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("x: %w", ErrNotFound), "not_found"},
		{fmt.Errorf("x: %w", ErrExists), "exists"},
		{fmt.Errorf("x: %w", ErrInvalidName), "invalid"},
		{errors.New("disk on fire"), "error"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, outcomeFromError(tt.err))
	}
}
