package wordstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cache is the local copy of the last loaded word list
type Cache struct {
	path string
}

// NewCache creates a cache at path. An empty path disables caching.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Load returns the cached words; a missing cache holds none
func (c *Cache) Load() ([]string, error) {
	if c == nil || c.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read word cache: %w", err)
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("failed to parse word cache: %w", err)
	}
	return words, nil
}

// Save overwrites the cache with words
func (c *Cache) Save(words []string) error {
	if c == nil || c.path == "" {
		return nil
	}
	if words == nil {
		words = []string{}
	}
	data, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("failed to encode word cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write word cache: %w", err)
	}
	return nil
}
