package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound    = errors.New("upload not found")
	ErrInvalidName = errors.New("invalid upload name")
)

type Info struct {
	Size        int64
	ContentType string
}

// CleanName reduces a client supplied filename to its final element and
// rejects names that would escape the upload root.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)

	switch base {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	if strings.ContainsAny(base, "/\x00") {
		return "", ErrInvalidName
	}
	return base, nil
}

// shared by both backends so a stored name is always a single path element
func checkName(name string) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}
	if clean != name {
		return ErrInvalidName
	}
	return nil
}

// Pinger is implemented by backends that can report whether they are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
