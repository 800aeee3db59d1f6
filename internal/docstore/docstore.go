// Package docstore persists JSON documents in a hierarchical directory tree.
//
// A document path such as ["acme", "widgets", "issue", "42"] maps to
// <root>/acme/widgets/issue/42.json. Intermediate namespaces are created on
// write, and any prefix can be removed in one call.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const docExt = ".json"

// ErrInvalidPath is returned for empty or unsafe path segments.
var ErrInvalidPath = errors.New("invalid document path")

// Store is a document tree rooted at a directory of an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a store rooted at root on fs.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: filepath.Clean(root)}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Sub returns a store for the child namespace name.
func (s *Store) Sub(name string) (*Store, error) {
	if err := checkSegment(name); err != nil {
		return nil, err
	}
	return &Store{fs: s.fs, root: filepath.Join(s.root, name)}, nil
}

// Read decodes the document at path into v. It returns false when the
// document does not exist.
func (s *Store) Read(path []string, v any) (bool, error) {
	file, err := s.leaf(path)
	if err != nil {
		return false, err
	}
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", file, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", file, err)
	}
	return true, nil
}

// Write stores v at path, replacing any previous document atomically.
func (s *Store) Write(path []string, v any) error {
	file, err := s.leaf(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", file, err)
	}

	dir := filepath.Dir(file)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(file)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := s.fs.Rename(tmpName, file); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", file, err)
	}
	return nil
}

// Delete removes the single document at path. Missing documents are not an error.
func (s *Store) Delete(path []string) error {
	file, err := s.leaf(path)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", file, err)
	}
	return nil
}

// RemoveTree removes every document under prefix. An empty prefix clears the store.
func (s *Store) RemoveTree(prefix []string) error {
	dir, err := s.dir(prefix)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

// Children lists the namespaces directly below prefix, sorted.
func (s *Store) Children(prefix []string) ([]string, error) {
	dir, err := s.dir(prefix)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, fi := range infos {
		if fi.IsDir() {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) leaf(path []string) (string, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	dir, err := s.dir(path[:len(path)-1])
	if err != nil {
		return "", err
	}
	name := path[len(path)-1]
	if err := checkSegment(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+docExt), nil
}

func (s *Store) dir(prefix []string) (string, error) {
	parts := make([]string, 0, len(prefix)+1)
	parts = append(parts, s.root)
	for _, seg := range prefix {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...), nil
}

func checkSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
		return fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
	}
	return nil
}
