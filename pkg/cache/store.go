package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// Store keeps rendered pages on disk, one file per page, named by the hash
// of the page content.
type Store struct {
	Dir  string
	opts options
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &Store{Dir: dir, opts: buildOptions(opts)}, nil
}

// PageKey returns the store key for page.
func PageKey(page string) string {
	return fmt.Sprintf("%016x", Key(page))
}

// Put writes page and returns its key. Writing a page that is already
// stored is a no-op.
func (s *Store) Put(page string) (string, error) {
	key := PageKey(page)
	path := s.path(key)
	if fileExists(path) {
		return key, nil
	}
	if err := writeFile(path, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("storing page %s: %w", key, err)
	}
	s.opts.logger.Debug("page stored", zap.String("key", key), zap.Int("bytes", len(page)))
	return key, nil
}

// Get returns the page stored under key. A page whose content no longer
// matches its key is treated as missing.
func (s *Store) Get(key string) (string, bool, error) {
	if !validKey(key) {
		return "", false, fmt.Errorf("invalid page key %q", key)
	}
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading page %s: %w", key, err)
	}
	page := string(b)
	if PageKey(page) != key {
		s.opts.logger.Warn("stored page does not match its key", zap.String("key", key))
		return "", false, nil
	}
	return page, true, nil
}

// Delete removes the page stored under key. Deleting a missing page is not
// an error.
func (s *Store) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid page key %q", key)
	}
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.Dir, key+".page")
}

func validKey(key string) bool {
	if len(key) != 16 {
		return false
	}
	_, err := strconv.ParseUint(key, 16, 64)
	return err == nil
}

// writeFile writes data through a temporary file and renames it into place,
// so readers never see a partial page.
func writeFile(dst string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
