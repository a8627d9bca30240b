package wordstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type document struct {
	ID    string   `yaml:"id"`
	Words []string `yaml:"words"`
}

type fileContents struct {
	Documents []document `yaml:"documents"`
}

// FileStore keeps the word documents in a yaml file
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path; the file is created on save
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadAll returns the words of every document in file order. A missing file
// holds no words.
func (f *FileStore) LoadAll(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return nil, err
	}
	var words []string
	for _, doc := range contents.Documents {
		words = append(words, doc.Words...)
	}
	return words, nil
}

// SaveAll replaces the words of the first document, creating it if needed
func (f *FileStore) SaveAll(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.read()
	if err != nil {
		return err
	}
	if len(contents.Documents) == 0 {
		contents.Documents = append(contents.Documents, document{ID: uuid.NewString()})
	}
	contents.Documents[0].Words = append([]string{}, words...)

	data, err := yaml.Marshal(contents)
	if err != nil {
		return fmt.Errorf("failed to marshal word store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create word store directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write word store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace word store: %w", err)
	}
	return nil
}

func (f *FileStore) read() (fileContents, error) {
	var contents fileContents
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return contents, nil
	}
	if err != nil {
		return contents, fmt.Errorf("failed to read word store: %w", err)
	}
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return contents, fmt.Errorf("failed to parse word store: %w", err)
	}
	return contents, nil
}
