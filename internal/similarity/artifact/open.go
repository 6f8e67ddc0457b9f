package artifact

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Open returns the Store for backend rooted at dir, with a close function
// the caller must run on shutdown.
func Open(backend, dir string) (Store, func() error, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir), func() error { return nil }, nil
	case BackendBadger:
		s, err := OpenBadgerStore(filepath.Join(dir, "badger"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown artifact backend %q", backend)
	}
}
