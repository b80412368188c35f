package main

import (
	"os"

	"github.com/cs-au-dk/jstar/analysis/absint"
	"github.com/cs-au-dk/jstar/utils"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config collects the analysis parameters. Command line flags provide
// the baseline; a yaml configuration file, when given, overrides it.
type Config struct {
	Context       string   `yaml:"context"`
	K             int      `yaml:"k"`
	MaxSteps      int      `yaml:"max-steps"`
	FullCallGraph bool     `yaml:"full-callgraph"`
	Verbose       bool     `yaml:"verbose"`
	// HostGlobals names opaque host objects seeded onto the global
	// object, e.g. "document" for browser code.
	HostGlobals []string `yaml:"host-globals"`
}

func makeConfig() (*Config, error) {
	opts := utils.Opts()
	conf := &Config{
		Context:       opts.ContextPolicy(),
		K:             opts.CallStringBound(),
		FullCallGraph: opts.FullCg(),
		Verbose:       opts.Verbose(),
	}
	if path := opts.Config(); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read configuration %s", path)
		}
		if err := yaml.Unmarshal(buf, conf); err != nil {
			return nil, errors.Wrapf(err, "cannot parse configuration %s", path)
		}
	}
	return conf, nil
}

// policy instantiates the configured context sensitivity policy.
func (c *Config) policy() (absint.ContextPolicy, error) {
	switch c.Context {
	case "insensitive":
		return absint.InsensitivePolicy(), nil
	case "1cfa":
		return absint.CallStringPolicy(1), nil
	case "kcfa":
		if c.K < 1 {
			return nil, errors.Errorf("kcfa requires k >= 1, got %d", c.K)
		}
		return absint.CallStringPolicy(c.K), nil
	default:
		return nil, errors.Errorf("unknown context policy %q", c.Context)
	}
}
