// Package file loads machine definitions from the filesystem.
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/switchyard-dev/switchyard/pkg/adapters/memory"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Loader reads ingestion-contract JSON documents from disk. The ref passed
// to Load is a file path.
type Loader struct{}

// NewLoader creates a filesystem loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and decodes the machine definition at path.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading machine definition %q: %w", path, err)
	}
	g, err := memory.ParseGraph(raw)
	if err != nil {
		return nil, fmt.Errorf("machine definition %q: %w", path, err)
	}
	return g, nil
}
