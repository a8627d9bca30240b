// Package models manages the Vosk models used for recognition
package models

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Model is a downloadable Vosk model
type Model struct {
	Name        string
	Language    string
	Size        string
	URL         string
	Description string
}

// AvailableModels is the catalogue offered for download
var AvailableModels = []Model{
	{
		Name:        "vosk-model-small-en-us-0.15",
		Language:    "en-US",
		Size:        "40M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Description: "Lightweight English model, fast but less accurate",
	},
	{
		Name:        "vosk-model-en-us-0.22-lgraph",
		Language:    "en-US",
		Size:        "128M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22-lgraph.zip",
		Description: "Medium English model, balanced speed and accuracy",
	},
	{
		Name:        "vosk-model-en-us-0.22",
		Language:    "en-US",
		Size:        "1.8G",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22.zip",
		Description: "Large English model, slower but more accurate",
	},
	{
		Name:        "vosk-model-small-fr-0.22",
		Language:    "fr-FR",
		Size:        "41M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-fr-0.22.zip",
		Description: "Lightweight French model",
	},
	{
		Name:        "vosk-model-small-de-0.15",
		Language:    "de-DE",
		Size:        "45M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-de-0.15.zip",
		Description: "Lightweight German model",
	},
}

// DefaultModelName is used when no default has been chosen
const DefaultModelName = "vosk-model-small-en-us-0.15"

const defaultFile = ".default_model"

// Manager downloads and locates models under Dir
type Manager struct {
	Dir     string
	Catalog []Model
	Client  *http.Client
	log     zerolog.Logger
}

// NewManager creates a manager for dir
func NewManager(dir string, log zerolog.Logger) *Manager {
	return &Manager{
		Dir:     dir,
		Catalog: AvailableModels,
		Client:  http.DefaultClient,
		log:     log.With().Str("component", "models").Logger(),
	}
}

// Find looks name up in the catalogue
func (m *Manager) Find(name string) *Model {
	for i := range m.Catalog {
		if m.Catalog[i].Name == name {
			model := m.Catalog[i]
			return &model
		}
	}
	return nil
}

// Default returns the chosen default model name
func (m *Manager) Default() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir, defaultFile))
	if os.IsNotExist(err) {
		return DefaultModelName, nil
	}
	if err != nil {
		return DefaultModelName, err
	}
	if name := strings.TrimSpace(string(data)); name != "" {
		return name, nil
	}
	return DefaultModelName, nil
}

// SetDefault records name as the default model
func (m *Manager) SetDefault(name string) error {
	if m.Find(name) == nil {
		return fmt.Errorf("unknown model: %s", name)
	}
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.Dir, defaultFile), []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to save default model: %w", err)
	}
	return nil
}

// IsDownloaded reports whether the model directory exists
func (m *Manager) IsDownloaded(name string) (bool, error) {
	info, err := os.Stat(filepath.Join(m.Dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Resolve returns the path of a downloaded model. An empty name uses the
// default model.
func (m *Manager) Resolve(name string) (string, *Model, error) {
	if name == "" {
		var err error
		if name, err = m.Default(); err != nil {
			return "", nil, err
		}
	}
	ok, err := m.IsDownloaded(name)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, fmt.Errorf("model not found: %s (download it with --download-model %s)", name, name)
	}
	model := m.Find(name)
	if model == nil {
		model = &Model{Name: name}
	}
	return filepath.Join(m.Dir, name), model, nil
}

// ListDownloaded returns the names of downloaded models
func (m *Manager) ListDownloaded() ([]string, error) {
	entries, err := os.ReadDir(m.Dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "vosk-model-") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Download fetches and unpacks a catalogue model. progress may be nil.
func (m *Manager) Download(ctx context.Context, name string, progress func(downloaded, total int64)) error {
	model := m.Find(name)
	if model == nil {
		return fmt.Errorf("unknown model: %s", name)
	}
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	zipPath := filepath.Join(m.Dir, name+".zip")
	defer os.Remove(zipPath)

	m.log.Info().Str("model", name).Str("size", model.Size).Msg("downloading model")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, model.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	var body io.Reader = resp.Body
	if progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	_, err = io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download error: %w", err)
	}

	if err := extractZip(zipPath, m.Dir); err != nil {
		return fmt.Errorf("failed to extract model: %w", err)
	}
	m.log.Info().Str("model", name).Msg("model downloaded")
	return nil
}

type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    func(downloaded, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}

func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)
		// zip slip
		if !strings.HasPrefix(fpath, root) {
			return fmt.Errorf("illegal file path: %s", fpath)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}
		if err := extractFile(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
