package sqlxrepos

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fantakombat/backend/core"
)

func Test_retrySerializable(t *testing.T) {
	serialization := &pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"}
	unique := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	errFailed := errors.New("failed")

	tests := []struct {
		name         string
		failures     []error
		wantRuns     int
		wantErr      error
		wantStorage  bool
		cancelledCtx bool
	}{
		{name: "success", wantRuns: 1},
		{name: "other error", failures: []error{errFailed}, wantRuns: 1, wantErr: errFailed},
		{name: "unique violation", failures: []error{unique}, wantRuns: 1, wantErr: unique},
		{name: "retried", failures: []error{serialization, serialization}, wantRuns: 3},
		{
			name:     "wrapped failure retried",
			failures: []error{core.NewStorageError("committing transaction", serialization)},
			wantRuns: 2,
		},
		{
			name:        "attempts exhausted",
			failures:    []error{serialization, pkgerrors.Wrap(serialization, "creating scores"), serialization},
			wantRuns:    3,
			wantErr:     serialization,
			wantStorage: true,
		},
		{
			name:         "context cancelled",
			failures:     []error{serialization, serialization},
			wantRuns:     1,
			wantErr:      serialization,
			wantStorage:  true,
			cancelledCtx: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelledCtx {
				cancel()
			}

			var runs int
			err := retrySerializable(ctx, 3, func() error {
				runs++
				if runs <= len(tt.failures) {
					return tt.failures[runs-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantRuns, runs)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			var storageErr *core.StorageError
			assert.Equal(t, tt.wantStorage, errors.As(err, &storageErr))
		})
	}
}
