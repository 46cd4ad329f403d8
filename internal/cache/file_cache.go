package cache

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/properties"
)

// CacheEntry is the on-disk form of one cached value. Key repeats the file
// name so an entry copied under another name is not served.
type CacheEntry[T any] struct {
	Key       string    `json:"key"`
	Data      T         `json:"data"`
	WrittenAt time.Time `json:"written_at"`
	Checksum  string    `json:"checksum"`
}

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	GenerateKey(params ...any) string
}

// Key hashes params into a stable file-name-safe key.
func Key(params ...any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%v", p)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// FileCache stores one JSON file per key. Entries whose checksum or key do
// not match, or that are older than maxAge when one is set, are misses.
type FileCache[T any] struct {
	cacheDir string
	maxAge   time.Duration
	now      func() time.Time
}

// NewFileCache caches under $ROOT_PATH/data/cache/<subDir>.
func NewFileCache[T any](subDir string) *FileCache[T] {
	return NewFileCacheAt[T](properties.CachePath(subDir))
}

func NewFileCacheAt[T any](dir string) *FileCache[T] {
	return &FileCache[T]{cacheDir: dir, now: time.Now}
}

// WithMaxAge expires entries written more than d ago. Zero keeps entries
// forever.
func (fc *FileCache[T]) WithMaxAge(d time.Duration) *FileCache[T] {
	fc.maxAge = d
	return fc
}

func (fc *FileCache[T]) GenerateKey(params ...any) string {
	return Key(params...)
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T

	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if entry.Key != key || entry.Checksum != checksum(entry.Data) {
		return zero, false
	}
	if fc.maxAge > 0 && fc.now().Sub(entry.WrittenAt) > fc.maxAge {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return eris.Wrapf(err, "cache: create %s", fc.cacheDir)
	}

	raw, err := json.Marshal(CacheEntry[T]{
		Key:       key,
		Data:      data,
		WrittenAt: fc.now().UTC(),
		Checksum:  checksum(data),
	})
	if err != nil {
		return eris.Wrapf(err, "cache: marshal %s", key)
	}

	file := fc.path(key)
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return eris.Wrapf(err, "cache: write %s", tmp)
	}
	if err := os.Rename(tmp, file); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "cache: rename %s", tmp)
	}
	return nil
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

func checksum(data any) string {
	raw, _ := json.Marshal(data)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
