package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

const badgerKeyPrefix = "artifact:"

// BadgerStore keeps the three blobs under fixed keys and replaces them in a
// single transaction, so readers see either the old or the new generation.
type BadgerStore struct {
	db     *badger.DB
	owned  bool
	logger *slog.Logger
}

// OpenBadgerStore opens (or creates) a badger database at dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for artifacts: %w", err)
	}
	s := NewBadgerStore(db)
	s.owned = true
	return s, nil
}

// NewBadgerStore wraps an already open database. Close leaves it open.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db:     db,
		logger: slog.Default().With("component", "artifact-badger"),
	}
}

func blobKey(name string) []byte {
	return []byte(badgerKeyPrefix + name)
}

func (s *BadgerStore) Exists(ctx context.Context) (bool, error) {
	found := 0
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range Blobs {
			_, err := txn.Get(blobKey(name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("checking %s blob: %w", name, err)
			}
			found++
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found == len(Blobs), nil
}

func (s *BadgerStore) Load(ctx context.Context) (*Artifact, error) {
	blobs := make(map[string][]byte, len(Blobs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range Blobs {
			item, err := txn.Get(blobKey(name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s blob: %w", name, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s blob: %w", name, err)
			}
			blobs[name] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, apperrors.ErrArtifactNotFound
	}
	return decode(blobs)
}

func (s *BadgerStore) Store(ctx context.Context, a *Artifact) error {
	if err := checkStorable(a); err != nil {
		return err
	}
	blobs, err := encode(a)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, name := range Blobs {
			if err := txn.Set(blobKey(name), blobs[name]); err != nil {
				return fmt.Errorf("set %s blob: %w", name, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("artifact generation %s exceeds badger transaction limit: %w", a.Generation, err)
	}
	if err != nil {
		return err
	}
	s.logger.Info("artifact generation published", "generation", a.Generation, "products", len(a.ProductIDs))
	return nil
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
