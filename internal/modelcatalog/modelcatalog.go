// Package modelcatalog defines the ModelProvider external-collaborator
// interface (§6.2) and a YAML-backed implementation with the spec's
// hard-coded fallback.
package modelcatalog

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Model identifies the currently active Copilot model.
type Model struct {
	ModelID   string `yaml:"model_id"`
	ModelName string `yaml:"model_name"`
}

// Fallback is used whenever a Provider cannot determine the active model
// (§6.2).
var Fallback = Model{ModelID: "gpt-4o-2024-11-20", ModelName: "GPT-4o"}

// Provider exposes the currently selected upstream model.
type Provider interface {
	GetCurrentModel() (Model, error)
}

// YAMLProvider reads the active model from a small YAML file. It is the
// model-selection counterpart of the auth package's FileProvider: some
// external process (a model-picker UI, a config file edit) writes this file,
// and the gateway only reads it.
type YAMLProvider struct {
	path string

	mu    sync.RWMutex
	cache Model
	ok    bool
}

// NewYAMLProvider returns a YAMLProvider reading from path.
func NewYAMLProvider(path string) *YAMLProvider {
	return &YAMLProvider{path: path}
}

// GetCurrentModel returns the model recorded in the YAML file. On any error
// reading or parsing the file, it returns the Fallback model and a non-nil
// error so callers can log a warning (§6.2: "on error, callers use the
// fallback").
func (p *YAMLProvider) GetCurrentModel() (Model, error) {
	p.mu.RLock()
	cached, ok := p.cache, p.ok
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return Fallback, err
	}

	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Fallback, err
	}
	if m.ModelID == "" {
		return Fallback, nil
	}

	p.mu.Lock()
	p.cache, p.ok = m, true
	p.mu.Unlock()
	return m, nil
}
