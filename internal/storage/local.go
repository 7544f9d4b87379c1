package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Permissions for a store shared by a group of operators.
const (
	DirMode  = 0o775 | fs.ModeSetgid
	FileMode = 0o664
)

const tempMarker = ".tmp-"

// LocalStore writes panorama artifacts to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}

	s := &LocalStore{baseDir: abs, prefix: prefix}
	if err := s.mkdir(s.root()); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", abs, err)
	}
	return s, nil
}

// LocalPath returns the filesystem path of key.
func (s *LocalStore) LocalPath(key string) string {
	return filepath.Join(s.root(), filepath.FromSlash(key))
}

// Write writes data atomically using temp file + rename.
func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.LocalPath(key)
	dir := filepath.Dir(p)
	if err := s.mkdir(dir); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := fmt.Sprintf("%s%s%s", p, tempMarker, uuid.New().String())
	if err := writeFileSync(tempPath, data); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	// Chmod after creation so the process umask cannot strip group write.
	if err := os.Chmod(tempPath, FileMode); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("chmod %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, p); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, p, err)
	}
	return nil
}

// Read returns the contents of key.
func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.LocalPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Exists checks if a regular file exists at key.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(s.LocalPath(key))
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Head returns metadata about a stored file.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.LocalPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List returns all keys with the given prefix, skipping in-progress writes.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.root()
	start := root
	if dir := path.Dir(prefix); strings.Contains(prefix, "/") && dir != "." {
		start = filepath.Join(root, filepath.FromSlash(dir))
	}

	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.Contains(d.Name(), tempMarker) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	return "file://" + filepath.ToSlash(s.LocalPath(key))
}

// Backend returns "local".
func (s *LocalStore) Backend() string {
	return "local"
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) root() string {
	return filepath.Join(s.baseDir, filepath.FromSlash(s.prefix))
}

// mkdir creates dir and its missing parents, giving every directory it
// creates DirMode.
func (s *LocalStore) mkdir(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		_, err := os.Stat(d)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		missing = append(missing, d)
		if d == filepath.Dir(d) {
			break
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, DirMode.Perm()); err != nil {
		return err
	}
	for _, d := range missing {
		if err := os.Chmod(d, DirMode); err != nil {
			return err
		}
	}
	return nil
}

func writeFileSync(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileMode)
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

var _ LocalPather = (*LocalStore)(nil)
