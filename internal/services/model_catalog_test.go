package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
)

func TestModelCatalogBuiltins(t *testing.T) {
	catalog, err := LoadModelCatalog(testutil.Logger(t))
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	def := catalog.Default()
	if def.Name != "gpt-4o" || def.ContextWindow != 128000 {
		t.Fatalf("default model = %+v", def)
	}

	if _, ok := catalog.Get("gpt-4.1"); !ok {
		t.Fatal("gpt-4.1 missing from built-in catalog")
	}
	if _, ok := catalog.Get("nonexistent"); ok {
		t.Fatal("unknown model resolved")
	}

	// Unknown names fall back to the default instead of failing.
	if got := catalog.Resolve("some-future-model"); got.Name != "gpt-4o" {
		t.Fatalf("Resolve fallback = %+v", got)
	}
	if got := catalog.Resolve(""); got.Name != "gpt-4o" {
		t.Fatalf("Resolve empty = %+v", got)
	}
}

func TestModelCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	body := `default: small
models:
  - name: small
    context_window: 8000
    max_completion_tokens: 1000
  - name: large
    context_window: 200000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	t.Setenv("MODEL_CATALOG_PATH", path)

	catalog, err := LoadModelCatalog(testutil.Logger(t))
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	if got := catalog.Default(); got.Name != "small" || got.ContextWindow != 8000 {
		t.Fatalf("default = %+v", got)
	}
	// File catalogs replace the builtins entirely.
	if _, ok := catalog.Get("gpt-4o"); ok {
		t.Fatal("builtin model survived file override")
	}
	// Missing completion budget gets a sane floor.
	large, ok := catalog.Get("large")
	if !ok || large.MaxCompletionTokens != 4096 {
		t.Fatalf("large = %+v", large)
	}
}

func TestModelCatalogRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"no models", "default: x\nmodels: []\n"},
		{"default not listed", "default: ghost\nmodels:\n  - name: real\n    context_window: 1000\n"},
		{"zero context window", "models:\n  - name: broken\n    context_window: 0\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write catalog: %v", err)
			}
			t.Setenv("MODEL_CATALOG_PATH", path)
			if _, err := LoadModelCatalog(testutil.Logger(t)); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}
