package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emmett/hark/internal/models"
)

// ModelManager is the command-line face of models.Manager
type ModelManager struct {
	models *models.Manager
	out    io.Writer
	in     *bufio.Reader
}

// NewModelManager prints to out and reads answers from in
func NewModelManager(m *models.Manager, out io.Writer, in io.Reader) *ModelManager {
	return &ModelManager{models: m, out: out, in: bufio.NewReader(in)}
}

func (m *ModelManager) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *ModelManager) ListModels() error {
	m.printf("Available models for download:\n\n")
	for i, model := range m.models.Catalog {
		m.printf("%d. %s\n", i+1, model.Name)
		m.printf("   Language: %s\n", model.Language)
		m.printf("   Size:     %s\n", model.Size)
		m.printf("   Info:     %s\n", model.Description)
		if ok, _ := m.models.IsDownloaded(model.Name); ok {
			m.printf("   Status:   ✓ Downloaded\n\n")
		} else {
			m.printf("   Status:   Not downloaded\n\n")
		}
	}
	m.printf("To download a model, use:\n  hark --download-model <model-name>\n")
	return nil
}

func (m *ModelManager) ListDownloaded() error {
	downloaded, err := m.models.ListDownloaded()
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}
	if len(downloaded) == 0 {
		m.printf("No models downloaded yet.\n\n")
		m.printf("Use 'hark --list-models' to see available models\n")
		m.printf("Use 'hark --download-model <name>' to download a model\n")
		return nil
	}

	def, _ := m.models.Default()
	m.printf("Downloaded models (%d):\n\n", len(downloaded))
	for i, name := range downloaded {
		m.printf("%d. %s", i+1, name)
		if name == def {
			m.printf(" [DEFAULT]")
		}
		m.printf("\n")
	}
	return nil
}

func (m *ModelManager) Download(ctx context.Context, name string) error {
	model := m.models.Find(name)
	if model == nil {
		m.printf("Unknown model '%s'. Use 'hark --list-models' to see available models.\n", name)
		return fmt.Errorf("unknown model: %s", name)
	}
	if ok, err := m.models.IsDownloaded(name); err != nil {
		return fmt.Errorf("error checking model: %w", err)
	} else if ok {
		m.printf("Model '%s' is already downloaded.\n", name)
		return nil
	}

	m.printf("Downloading model: %s (%s)\n", model.Name, model.Size)
	if err := m.models.Download(ctx, name, m.progress); err != nil {
		return fmt.Errorf("error downloading model: %w", err)
	}
	m.printf("\n✓ Model '%s' downloaded successfully!\n", name)
	return nil
}

func (m *ModelManager) progress(downloaded, total int64) {
	if total <= 0 {
		m.printf("\rProgress: %d bytes", downloaded)
		return
	}
	m.printf("\rProgress: %.1f%% (%d/%d bytes)", float64(downloaded)/float64(total)*100, downloaded, total)
}

func (m *ModelManager) SetDefault(name string) error {
	if err := m.models.SetDefault(name); err != nil {
		return err
	}
	m.printf("✓ Default model set to: %s\n", name)
	if ok, _ := m.models.IsDownloaded(name); !ok {
		m.printf("Note: this model is not downloaded yet. Run 'hark --download-model %s'.\n", name)
	}
	return nil
}

// Ensure makes sure name (or the default model when empty) is present,
// downloading it when autoDownload is set or the user agrees.
func (m *ModelManager) Ensure(ctx context.Context, name string, autoDownload bool) (string, error) {
	if name == "" {
		var err error
		if name, err = m.models.Default(); err != nil {
			return "", err
		}
	}
	ok, err := m.models.IsDownloaded(name)
	if err != nil {
		return "", fmt.Errorf("failed to check for model: %w", err)
	}
	if ok {
		return name, nil
	}

	if !autoDownload {
		m.printf("Model '%s' not found. Download it now? (y/n): ", name)
		answer, err := m.in.ReadString('\n')
		if err != nil && answer == "" {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return "", fmt.Errorf("model download declined")
		}
	}
	return name, m.Download(ctx, name)
}
