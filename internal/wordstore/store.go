// Package wordstore persists the trigger word list. A store holds one or more
// documents of words: loading concatenates all of them, saving overwrites the
// first document or creates one.
package wordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when saving an input with no words in it
var ErrEmptyInput = errors.New("no trigger words given")

// Store is the canonical trigger word list
type Store interface {
	LoadAll(ctx context.Context) ([]string, error)
	SaveAll(ctx context.Context, words []string) error
}

// Config selects and configures a store backend
type Config struct {
	Backend     string `yaml:"backend"` // file or postgres
	Path        string `yaml:"path"`
	CachePath   string `yaml:"cache_path"`
	PostgresURL string `yaml:"postgres_url"`
	MaxConns    int32  `yaml:"max_conns"`
}

// Open returns the store for cfg. The caller closes it when it implements
// io.Closer.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("word store path is empty")
		}
		return NewFileStore(cfg.Path), nil
	case "postgres", "pg":
		s, err := OpenPostgres(ctx, cfg.PostgresURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown word store backend: %s", cfg.Backend)
}

// ParseInput splits a comma-separated list of words
func ParseInput(input string) []string {
	var words []string
	for _, w := range strings.Split(input, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
