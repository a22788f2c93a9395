package fragcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

// Record layout: magic | expiresAt (8 bytes) | keyLen (4 bytes) | key | value.
var fileRecordMagic = []byte("FFR1")

const (
	fileRecordHeaderLen = 16
	fileEntrySuffix     = ".cache"
)

var errFileRecordCorrupt = errors.New("file cache record is corrupt")

type fileStore struct {
	dir        string
	defaultTTL time.Duration
}

func newFileStore(dir string, defaultTTL time.Duration) (Store, error) {
	if dir == "" {
		dir = defaultFileDir()
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file cache dir: %w", err)
	}
	return &fileStore{
		dir:        dir,
		defaultTTL: defaultTTL,
	}, nil
}

func (s *fileStore) Driver() Driver {
	return DriverFile
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := s.path(key)
	rec, ok, err := readFileRecord(path)
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.key != key {
		return nil, false, nil
	}
	return rec.value, true, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).UnixNano()

	tmp, err := createTempFile(s.dir, "fragment-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	var header [fileRecordHeaderLen]byte
	copy(header[:4], fileRecordMagic)
	binary.BigEndian.PutUint64(header[4:12], uint64(expiresAt))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(key)))

	for _, chunk := range [][]byte{header[:], []byte(key), value} {
		if _, err := tmp.Write(chunk); err != nil {
			tmp.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := renameFile(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *fileStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) DeleteMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Flush removes entry files only; anything else in the directory is left alone.
func (s *fileStore) Flush(_ context.Context) error {
	entries, err := s.entries()
	if err != nil {
		return err
	}
	for _, path := range entries {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, path := range entries {
		rec, ok, err := readFileRecord(path)
		if err != nil {
			continue
		}
		if ok && strings.HasPrefix(rec.key, prefix) {
			keys = append(keys, rec.key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) entries() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileEntrySuffix) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, entry.Name()))
	}
	return paths, nil
}

func (s *fileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.dir, name+fileEntrySuffix)
}

type fileRecord struct {
	expiresAt int64
	key       string
	value     []byte
}

// readFileRecord loads a record, removing it when it is expired or corrupt.
func readFileRecord(path string) (fileRecord, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileRecord{}, false, nil
		}
		return fileRecord{}, false, err
	}
	rec, err := decodeFileRecord(data)
	if err != nil {
		_ = os.Remove(path)
		return fileRecord{}, false, err
	}
	if rec.expiresAt > 0 && time.Now().UnixNano() > rec.expiresAt {
		_ = os.Remove(path)
		return fileRecord{}, false, nil
	}
	return rec, true, nil
}

func decodeFileRecord(data []byte) (fileRecord, error) {
	if len(data) < fileRecordHeaderLen || !bytes.Equal(data[:4], fileRecordMagic) {
		return fileRecord{}, errFileRecordCorrupt
	}
	expiresAt := int64(binary.BigEndian.Uint64(data[4:12]))
	keyLen := int(binary.BigEndian.Uint32(data[12:16]))
	if len(data) < fileRecordHeaderLen+keyLen {
		return fileRecord{}, errFileRecordCorrupt
	}
	body := data[fileRecordHeaderLen:]
	return fileRecord{
		expiresAt: expiresAt,
		key:       string(body[:keyLen]),
		value:     body[keyLen:],
	}, nil
}
