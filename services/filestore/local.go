package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

// LocalStore writes files under a directory of the local disk.
type LocalStore struct {
	dir string
}

var _ core.FileStore = (*LocalStore)(nil)

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) path(key string) (string, error) {
	fp := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(fp, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return "", errors.Errorf("invalid file key %q", key)
	}
	return fp, nil
}

func (s *LocalStore) Put(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fp, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}

	f, err := os.Create(fp)
	if err != nil {
		return "", errors.Wrap(err, "creating "+key)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "writing "+key)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "closing "+key)
	}
	return fp, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing "+key)
	}
	return nil
}

// NewFileStore picks the store configured by conf.Driver.
func NewFileStore(conf core.StorageConfig) (core.FileStore, error) {
	switch conf.Driver {
	case "s3":
		return NewS3Store(conf)
	case "local", "":
		return NewLocalStore(conf.LocalDir), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Driver)
}
