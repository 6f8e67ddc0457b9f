// Package artifact persists built similarity indexes. An artifact is three
// blobs (model, matrix, product ids) that are always written and replaced
// together.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

// Artifact is one built index generation. Row i of Matrix belongs to
// ProductIDs[i]. An empty artifact has no product ids and nil Model and
// Matrix.
type Artifact struct {
	Generation string
	BuiltAt    time.Time
	Model      *vector.Model
	Matrix     *vector.Matrix
	ProductIDs []int64
}

// Empty returns the artifact persisted for an empty catalog.
func Empty() *Artifact {
	return &Artifact{ProductIDs: []int64{}}
}

// IsEmpty reports whether the artifact indexes nothing.
func (a *Artifact) IsEmpty() bool {
	return len(a.ProductIDs) == 0 || a.Model == nil || a.Matrix == nil
}

// Validate checks the invariants linking the three parts. Errors wrap
// errors.ErrArtifactCorrupt.
func (a *Artifact) Validate() error {
	if (a.Model == nil) != (a.Matrix == nil) {
		return fmt.Errorf("%w: model and matrix must be both present or both absent", apperrors.ErrArtifactCorrupt)
	}
	if a.Model == nil {
		if len(a.ProductIDs) != 0 {
			return fmt.Errorf("%w: %d product ids without a matrix", apperrors.ErrArtifactCorrupt, len(a.ProductIDs))
		}
		return nil
	}
	if err := a.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrArtifactCorrupt, err)
	}
	if err := a.Matrix.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrArtifactCorrupt, err)
	}
	if a.Matrix.Rows != len(a.ProductIDs) {
		return fmt.Errorf("%w: %d product ids for %d matrix rows", apperrors.ErrArtifactCorrupt, len(a.ProductIDs), a.Matrix.Rows)
	}
	if a.Matrix.Cols != a.Model.Len() {
		return fmt.Errorf("%w: %d matrix columns for %d terms", apperrors.ErrArtifactCorrupt, a.Matrix.Cols, a.Model.Len())
	}
	seen := make(map[int64]struct{}, len(a.ProductIDs))
	for _, id := range a.ProductIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate product id %d", apperrors.ErrArtifactCorrupt, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkStorable rejects artifacts a Store must not persist. The caller owns
// the generation id; stores never assign one.
func checkStorable(a *Artifact) error {
	if a.Generation == "" {
		return fmt.Errorf("%w: artifact has no generation", apperrors.ErrInvalidInput)
	}
	return a.Validate()
}

// Store persists artifacts. Implementations make a stored artifact visible
// all at once: Load returns either the previous generation or the new one,
// never a mix.
type Store interface {
	// Exists reports whether a complete artifact is present.
	Exists(ctx context.Context) (bool, error)
	// Load returns the current artifact. It fails with
	// errors.ErrArtifactNotFound when none was stored and with
	// errors.ErrArtifactCorrupt when the stored blobs are missing or
	// inconsistent.
	Load(ctx context.Context) (*Artifact, error)
	// Store validates a and replaces the current artifact with it. The caller
	// sets a.Generation; an empty one fails with errors.ErrInvalidInput.
	Store(ctx context.Context, a *Artifact) error
}
