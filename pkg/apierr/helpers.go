package apierr

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/maraichr/pipetrack/internal/registry"
	"github.com/maraichr/pipetrack/internal/store"
)

// IsNotFound reports whether the error represents a missing record from any of
// the lookup layers.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, pgx.ErrNoRows)
}
