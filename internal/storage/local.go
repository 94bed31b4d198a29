package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// LocalStore keeps uploads as plain files under Dir, the way a static
// folder would.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

// Ping checks the upload directory is still there.
func (s *LocalStore) Ping(_ context.Context) error {
	fi, err := os.Stat(s.Dir)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("upload dir %s is not a directory", s.Dir)
	}
	return nil
}

func (s *LocalStore) Save(ctx context.Context, name string, data []byte, _ string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// write then rename so readers never see a half written file
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, Info, error) {
	if err := checkName(name); err != nil {
		return nil, Info{}, err
	}

	path := filepath.Join(s.Dir, name)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Info{}, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, Info{}, ErrNotFound
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		_ = f.Close()
		return nil, Info{}, err
	}

	return f, Info{Size: st.Size(), ContentType: mt.String()}, nil
}

func (s *LocalStore) Remove(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
