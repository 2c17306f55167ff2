package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// PreviewHandle is a locally-addressable reference to recorded bytes, backed
// by a file under the preview directory. Revoke removes the file; a revoked
// handle stays revoked.
type PreviewHandle struct {
	mu      sync.Mutex
	path    string
	revoked bool
}

func newPreviewHandle(dir string, data []byte, ext string) (*PreviewHandle, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("preview-%s%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &PreviewHandle{path: path}, nil
}

func (h *PreviewHandle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *PreviewHandle) Revoked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revoked
}

func (h *PreviewHandle) Revoke() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return nil
	}
	h.revoked = true
	return os.Remove(h.path)
}
