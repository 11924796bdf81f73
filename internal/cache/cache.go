// Package cache provides a content-addressed store for campaign input
// artifacts. Identical payloads share a single file on disk, keyed by the
// SHA-256 of their canonical JSON encoding, so repeated campaigns with the
// same parameters reuse one artifact instead of writing duplicates.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("cache: key not found")

type Cache struct {
	dir string
}

func New(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) Init() error {
	return os.MkdirAll(c.dir, 0755)
}

// Key computes the content address of v. Map keys are sorted by the JSON
// encoder, so logically equal values hash identically.
func Key(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cache: encode: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// GetOrCreate stores v under its content address unless an artifact with
// that address already exists. It reports the key and whether a new file
// was written.
func (c *Cache) GetOrCreate(v any) (string, bool, error) {
	key, err := Key(v)
	if err != nil {
		return "", false, err
	}

	path := c.path(key)
	if _, err := os.Stat(path); err == nil {
		return key, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("cache: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (c *Cache) Load(key string, out any) error {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *Cache) Path(key string) string {
	return c.path(key)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
