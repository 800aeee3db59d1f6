package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileStore persists tokens as a single JSON document so that consecutive
// CLI invocations can reuse an installation token. Reads are served from a
// MemoryStore front once a token has been seen.
type FileStore struct {
	mu    sync.Mutex
	fs    afero.Fs
	path  string
	now   func() time.Time
	front *MemoryStore
}

// NewFileStore returns a store backed by the file at path on fs.
func NewFileStore(fs afero.Fs, path string, opts ...Option) *FileStore {
	o := buildOptions(opts)
	return &FileStore{fs: fs, path: path, now: o.now, front: NewMemoryStore(opts...)}
}

func (f *FileStore) load() (map[string]*Token, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if os.IsNotExist(err) {
		return map[string]*Token{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	tokens := map[string]*Token{}
	if len(data) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return tokens, nil
}

func (f *FileStore) save(tokens map[string]*Token) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return f.fs.Rename(tmp, f.path)
}

func (f *FileStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens, err := f.load()
	if err != nil {
		return err
	}
	tokens[key] = &Token{Key: key, Value: value, ExpiresAt: f.now().Add(ttl)}
	if err := f.save(tokens); err != nil {
		return err
	}
	return f.front.Set(ctx, key, value, ttl)
}

func (f *FileStore) Get(ctx context.Context, key string) (*Token, error) {
	if tok, err := f.front.Get(ctx, key); err == nil {
		return tok, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens, err := f.load()
	if err != nil {
		return nil, err
	}
	tok, ok := tokens[key]
	if !ok {
		return nil, ErrTokenNotFound
	}
	now := f.now()
	if tok.ExpiredAt(now) {
		return nil, ErrTokenExpired
	}
	if err := f.front.Set(ctx, key, tok.Value, tok.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}
	return tok, nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.front.Delete(ctx, key); err != nil {
		return err
	}
	tokens, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return f.save(tokens)
}

func (f *FileStore) Cleanup(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.front.Cleanup(ctx); err != nil {
		return 0, err
	}
	tokens, err := f.load()
	if err != nil {
		return 0, err
	}
	now := f.now()
	count := 0
	for k, tok := range tokens {
		if tok.ExpiredAt(now) {
			delete(tokens, k)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, f.save(tokens)
}
