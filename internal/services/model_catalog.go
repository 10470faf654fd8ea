package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// ModelSpec describes the budget-relevant limits of one chat model.
type ModelSpec struct {
	Name                string `yaml:"name"`
	ContextWindow       int    `yaml:"context_window"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
}

type modelCatalogFile struct {
	Default string      `yaml:"default"`
	Models  []ModelSpec `yaml:"models"`
}

// ModelCatalog maps model names to their limits. Loaded once at startup from
// MODEL_CATALOG_PATH when set; otherwise built-in defaults apply.
type ModelCatalog struct {
	models      map[string]ModelSpec
	defaultName string
}

func builtinModels() modelCatalogFile {
	return modelCatalogFile{
		Default: "gpt-4o",
		Models: []ModelSpec{
			{Name: "gpt-4o", ContextWindow: 128000, MaxCompletionTokens: 16384},
			{Name: "gpt-4o-mini", ContextWindow: 128000, MaxCompletionTokens: 16384},
			{Name: "gpt-4.1", ContextWindow: 1000000, MaxCompletionTokens: 32768},
			{Name: "gpt-4.1-mini", ContextWindow: 1000000, MaxCompletionTokens: 32768},
			{Name: "o3-mini", ContextWindow: 200000, MaxCompletionTokens: 100000},
		},
	}
}

func LoadModelCatalog(log *logger.Logger) (*ModelCatalog, error) {
	file := builtinModels()

	if path := strings.TrimSpace(os.Getenv("MODEL_CATALOG_PATH")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read model catalog: %w", err)
		}
		var parsed modelCatalogFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parse model catalog: %w", err)
		}
		if len(parsed.Models) == 0 {
			return nil, fmt.Errorf("model catalog %s lists no models", path)
		}
		file = parsed
		if log != nil {
			log.Info("Loaded model catalog", "path", path, "models", len(parsed.Models))
		}
	}

	out := &ModelCatalog{
		models:      make(map[string]ModelSpec, len(file.Models)),
		defaultName: strings.TrimSpace(file.Default),
	}
	for _, m := range file.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" || m.ContextWindow <= 0 {
			return nil, fmt.Errorf("model catalog entry %q invalid", m.Name)
		}
		if m.MaxCompletionTokens <= 0 {
			m.MaxCompletionTokens = 4096
		}
		out.models[name] = m
	}
	if out.defaultName == "" {
		out.defaultName = file.Models[0].Name
	}
	if _, ok := out.models[out.defaultName]; !ok {
		return nil, fmt.Errorf("model catalog default %q not listed", out.defaultName)
	}
	return out, nil
}

func (c *ModelCatalog) Get(name string) (ModelSpec, bool) {
	m, ok := c.models[strings.TrimSpace(name)]
	return m, ok
}

// Resolve falls back to the catalog default for unknown or empty names.
func (c *ModelCatalog) Resolve(name string) ModelSpec {
	if m, ok := c.Get(name); ok {
		return m
	}
	return c.models[c.defaultName]
}

func (c *ModelCatalog) Default() ModelSpec {
	return c.models[c.defaultName]
}
