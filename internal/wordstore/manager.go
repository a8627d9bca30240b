package wordstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/trigger"
)

// Target receives every word list the manager loads
type Target interface {
	SetTriggerWords(ctx context.Context, words []string) error
}

// Manager keeps the store, the local cache and the listener's trigger words
// in step
type Manager struct {
	store  Store
	cache  *Cache
	target Target
	log    zerolog.Logger

	mu    sync.Mutex
	words []string
}

// NewManager creates a manager. cache and target may be nil.
func NewManager(store Store, cache *Cache, target Target, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		cache:  cache,
		target: target,
		log:    log.With().Str("component", "wordstore").Logger(),
	}
}

// Load reads the store, normalizes the words and publishes them. When the
// store cannot be read the cached list is used instead.
func (m *Manager) Load(ctx context.Context) ([]string, error) {
	raw, err := m.store.LoadAll(ctx)
	if err != nil {
		cached, cerr := m.cache.Load()
		if cerr != nil || cached == nil {
			return nil, fmt.Errorf("failed to load trigger words: %w", err)
		}
		m.log.Warn().Err(err).Int("words", len(cached)).Msg("word store unavailable, using cache")
		raw = cached
	}

	words := trigger.Normalize(raw).Words()
	if err := m.cache.Save(words); err != nil {
		m.log.Warn().Err(err).Msg("failed to update word cache")
	}

	m.mu.Lock()
	m.words = words
	m.mu.Unlock()

	if m.target != nil {
		if err := m.target.SetTriggerWords(ctx, words); err != nil {
			return words, fmt.Errorf("failed to publish trigger words: %w", err)
		}
	}
	return words, nil
}

// Save replaces the saved list with words and reloads
func (m *Manager) Save(ctx context.Context, words []string) ([]string, error) {
	normalized := trigger.Normalize(words).Words()
	if len(normalized) == 0 {
		return nil, ErrEmptyInput
	}
	if err := m.store.SaveAll(ctx, normalized); err != nil {
		return nil, fmt.Errorf("failed to save trigger words: %w", err)
	}
	if err := m.cache.Save(normalized); err != nil {
		m.log.Warn().Err(err).Msg("failed to update word cache")
	}
	return m.Load(ctx)
}

// SaveInput saves a comma-separated list of words
func (m *Manager) SaveInput(ctx context.Context, input string) ([]string, error) {
	return m.Save(ctx, ParseInput(input))
}

// Delete removes word from the cached list, writes the rest back and reloads
func (m *Manager) Delete(ctx context.Context, word string) ([]string, error) {
	cached, err := m.cache.Load()
	if err != nil {
		return nil, err
	}
	if cached == nil {
		cached = m.Words()
	}

	drop := trigger.Normalize([]string{word})
	var rest []string
	for _, w := range cached {
		if !drop.Contains(w) {
			rest = append(rest, w)
		}
	}
	rest = trigger.Normalize(rest).Words()

	if err := m.store.SaveAll(ctx, rest); err != nil {
		return nil, fmt.Errorf("failed to delete trigger word: %w", err)
	}
	if err := m.cache.Save(rest); err != nil {
		m.log.Warn().Err(err).Msg("failed to update word cache")
	}
	return m.Load(ctx)
}

// Words returns the last loaded list
func (m *Manager) Words() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.words...)
}
