package registry

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

//go:embed static/catalog.yaml
var builtinCatalog []byte

// LoadCatalog returns the embedded system catalog.
func LoadCatalog() ([]domain.ModelConfig, error) {
	return parseCatalog(builtinCatalog)
}

// LoadCatalogFile reads a replacement catalog from disk.
func LoadCatalogFile(path string) ([]domain.ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]domain.ModelConfig, error) {
	var models []domain.ModelConfig
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return models, nil
}
