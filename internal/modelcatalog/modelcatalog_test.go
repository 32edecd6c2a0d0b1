package modelcatalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetCurrentModelFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte("model_id: claude-copilot\nmodel_name: Claude (Copilot)\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewYAMLProvider(path)
	m, err := p.GetCurrentModel()
	if err != nil {
		t.Fatalf("GetCurrentModel: %v", err)
	}
	if m.ModelID != "claude-copilot" {
		t.Errorf("ModelID = %q", m.ModelID)
	}
}

func TestGetCurrentModelFallsBackOnMissingFile(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	m, err := p.GetCurrentModel()
	if err == nil {
		t.Error("expected error for missing file")
	}
	if m != Fallback {
		t.Errorf("got %+v, want fallback %+v", m, Fallback)
	}
}
