// Package registry keeps the externally visible state of every job.
package registry

import (
	"context"
	"errors"

	"github.com/artworkup/api/internal/model"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Store holds jobs. Implementations hand out copies, so callers never share
// memory with a concurrent writer.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// List returns every job ordered by start time.
	List(ctx context.Context) ([]*model.Job, error)
	// Update applies fn to the stored job and saves the result.
	Update(ctx context.Context, id string, fn func(job *model.Job)) (*model.Job, error)
	Delete(ctx context.Context, id string) error
}
