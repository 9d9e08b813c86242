// Package textfile stores rendered metrics as one file per node and event type and serves
// the merged directory to Prometheus.
package textfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// Writer replaces files of a directory atomically.
type Writer struct {
	dir string
}

// NewWriter creates dir when it does not exist yet.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Dir is the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns where the file for key is stored.
func (w *Writer) Path(key string) string {
	return filepath.Join(w.dir, key)
}

// Write replaces the content of the file named key. The content is written to a hidden
// temporary file which is renamed over the target while holding an advisory lock, so
// concurrent writers of the same key never interleave and readers never see a partial file.
func (w *Writer) Write(ctx context.Context, key string, content []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(w.dir, "."+key+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("unable to lock %s: %w", key, err)
	}
	if !locked {
		return fmt.Errorf("unable to lock %s", key)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(w.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write %s: %w", key, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to chmod %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), w.Path(key)); err != nil {
		return fmt.Errorf("unable to replace %s: %w", key, err)
	}
	return nil
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("invalid file key %q", key)
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid file key %q", key)
	}
	return nil
}
