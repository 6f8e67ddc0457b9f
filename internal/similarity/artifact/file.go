package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

const (
	currentFile     = "CURRENT"
	generationDir   = "gen-"
	blobExt         = ".blob"
	keepGenerations = 2
)

// FileStore keeps each generation in its own directory and publishes it by
// atomically renaming a CURRENT pointer file. Blobs are never rewritten in
// place, so a reader that resolved CURRENT keeps a consistent view while a
// newer generation is written. The previous generation is retained for
// readers still holding it.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir. The directory is created on
// first Store.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "artifact-file", "dir", dir),
	}
}

func (s *FileStore) Exists(ctx context.Context) (bool, error) {
	gen, err := s.current()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if errors.Is(err, apperrors.ErrArtifactCorrupt) {
		s.logger.Warn("unreadable CURRENT pointer", "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, name := range Blobs {
		if _, err := os.Stat(s.blobPath(gen, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("checking %s blob: %w", name, err)
		}
	}
	return true, nil
}

func (s *FileStore) Load(ctx context.Context) (*Artifact, error) {
	gen, err := s.current()
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	blobs := make(map[string][]byte, len(Blobs))
	for _, name := range Blobs {
		data, err := os.ReadFile(s.blobPath(gen, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s blob: %w", name, err)
		}
		blobs[name] = data
	}
	a, err := decode(blobs)
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", gen, err)
	}
	if a.Generation != gen {
		return nil, fmt.Errorf("%w: CURRENT names %q but blobs carry %q", apperrors.ErrArtifactCorrupt, gen, a.Generation)
	}
	return a, nil
}

// Store writes a into a fresh generation directory, syncs it, then swaps
// CURRENT to point at it.
func (s *FileStore) Store(ctx context.Context, a *Artifact) error {
	if err := checkStorable(a); err != nil {
		return err
	}
	if err := validGeneration(a.Generation); err != nil {
		return err
	}
	blobs, err := encode(a)
	if err != nil {
		return err
	}

	genPath := filepath.Join(s.dir, generationDir+a.Generation)
	if err := os.MkdirAll(genPath, 0755); err != nil {
		return fmt.Errorf("creating generation directory: %w", err)
	}
	for _, name := range Blobs {
		if err := writeFileSync(s.blobPath(a.Generation, name), blobs[name]); err != nil {
			os.RemoveAll(genPath)
			return fmt.Errorf("writing %s blob: %w", name, err)
		}
	}
	if err := syncDir(genPath); err != nil {
		os.RemoveAll(genPath)
		return err
	}

	if err := ctx.Err(); err != nil {
		os.RemoveAll(genPath)
		return fmt.Errorf("storing artifact: %w", err)
	}

	currentPath := filepath.Join(s.dir, currentFile)
	tmpPath := currentPath + ".tmp"
	if err := writeFileSync(tmpPath, []byte(a.Generation+"\n")); err != nil {
		os.RemoveAll(genPath)
		return fmt.Errorf("writing CURRENT: %w", err)
	}
	if err := os.Rename(tmpPath, currentPath); err != nil {
		os.Remove(tmpPath)
		os.RemoveAll(genPath)
		return fmt.Errorf("renaming CURRENT: %w", err)
	}
	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("syncing data directory", "error", err)
	}
	s.logger.Info("artifact generation published", "generation", a.Generation, "products", len(a.ProductIDs))
	s.prune(a.Generation)
	return nil
}

func (s *FileStore) current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		return "", err
	}
	gen := strings.TrimSpace(string(data))
	if err := validGeneration(gen); err != nil {
		return "", err
	}
	return gen, nil
}

func (s *FileStore) blobPath(gen, name string) string {
	return filepath.Join(s.dir, generationDir+gen, name+blobExt)
}

// prune removes generation directories beyond the newest keepGenerations,
// never touching the current one.
func (s *FileStore) prune(current string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("listing generations", "error", err)
		return
	}
	type gen struct {
		name string
		mod  int64
	}
	var gens []gen
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), generationDir) || e.Name() == generationDir+current {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		gens = append(gens, gen{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].mod > gens[j].mod })
	for i := keepGenerations - 1; i < len(gens); i++ {
		if err := os.RemoveAll(filepath.Join(s.dir, gens[i].name)); err != nil {
			s.logger.Warn("removing old generation", "generation", gens[i].name, "error", err)
			continue
		}
		s.logger.Debug("old generation removed", "generation", gens[i].name)
	}
}

func validGeneration(gen string) error {
	if gen == "" || gen == "." || gen == ".." || strings.ContainsAny(gen, `/\`) {
		return fmt.Errorf("%w: invalid generation %q", apperrors.ErrArtifactCorrupt, gen)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
