package rulestore

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/psaab/slotstrike/pkg/config"
	"github.com/psaab/slotstrike/pkg/rules"
)

// ConfigFile reads the rules section of the daemon config file. The file
// is re-read and fully validated on every load.
type ConfigFile struct {
	path string
}

func NewConfigFile(path string) *ConfigFile { return &ConfigFile{path: path} }

func (c *ConfigFile) LoadRules(_ context.Context, kind rules.Kind, initial bool) ([]rules.SnipeRule, error) {
	cfg, err := config.Load(c.path)
	if err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	return BuildRules(kind, cfg.Rules, initial)
}

// YAMLFile reads a standalone rules file:
//
//	rules:
//	  - kind: mint
//	    address: ...
type YAMLFile struct {
	path string
}

func NewYAMLFile(path string) *YAMLFile { return &YAMLFile{path: path} }

type rulesDoc struct {
	Rules []config.RuleEntry `yaml:"rules"`
}

func (y *YAMLFile) LoadRules(_ context.Context, kind rules.Kind, initial bool) ([]rules.SnipeRule, error) {
	raw, err := os.ReadFile(y.path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var doc rulesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", y.path, err)
	}
	return BuildRules(kind, doc.Rules, initial)
}
