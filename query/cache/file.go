package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

const fileSuffix = ".zst"

// ErrStoreClosed is returned by a FileStore after Close.
var ErrStoreClosed = errors.New("cache store is closed")

// FileStore keeps one zstd-compressed file per key in a directory. Each
// file starts with the expiry as big-endian Unix nanoseconds, zero for none.
type FileStore struct {
	fs  afero.Fs
	dir string
	now Clock

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	closed  bool
}

// NewFileStore creates a store under dir on fsys, creating dir if needed.
// Callers must Close the store.
func NewFileStore(fsys afero.Fs, dir string, opts ...Option) (*FileStore, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &FileStore{fs: fsys, dir: dir, now: apply(opts).now, encoder: encoder, decoder: decoder}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+fileSuffix)
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}

	path := s.path(key)
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) < 8 {
		_ = s.fs.Remove(path)
		return nil, false, nil
	}

	if exp := int64(binary.BigEndian.Uint64(data[:8])); exp != 0 && !s.now().Before(time.Unix(0, exp)) {
		_ = s.fs.Remove(path)
		return nil, false, nil
	}
	value, err := s.decoder.DecodeAll(data[8:], nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress cache file: %w", err)
	}
	return value, true, nil
}

func (s *FileStore) Put(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8, 8+len(value)/2)
	binary.BigEndian.PutUint64(buf, uint64(exp))
	buf = s.encoder.EncodeAll(value, buf)
	if err := afero.WriteFile(s.fs, s.path(key), buf, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := s.fs.Remove(m); err != nil {
			return fmt.Errorf("failed to delete cache file: %w", err)
		}
	}
	return nil
}

// Close releases the compressor resources. Closing twice is a no-op.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.decoder.Close()
	return s.encoder.Close()
}
