package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/quality"
	"github.com/sells-group/ticket-geocoder/internal/reprocess"
	"github.com/sells-group/ticket-geocoder/internal/stage"
)

// RunConfig is the top-level run file configuration.
type RunConfig struct {
	Name     string        `yaml:"name"`
	FailFast bool          `yaml:"fail_fast"`
	Workers  int           `yaml:"workers"`
	Stages   []StageConfig `yaml:"stages"`
}

// StageConfig declares one stage of a run: which technique to use and the
// policy governing when it fires.
type StageConfig struct {
	Name               string            `yaml:"name"`
	Technique          string            `yaml:"technique"`
	ReprocessThreshold string            `yaml:"reprocess_threshold"`
	SkipRules          SkipRulesConfig   `yaml:"skip_rules"`
	Settings           map[string]string `yaml:"settings"`
}

// SkipRulesConfig is the YAML shape of skip rules. Tier names are strings in
// the run file and validated into their typed form at Build.
type SkipRulesConfig struct {
	SkipIfLocked   *bool    `yaml:"skip_if_locked"`
	SkipTiers      []string `yaml:"skip_tiers"`
	SkipConfidence *float64 `yaml:"skip_confidence"`
	SkipTechniques []string `yaml:"skip_techniques"`
	SkipApproaches []string `yaml:"skip_approaches"`
}

// LoadRunConfig reads a run configuration from a YAML file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read run config %s", path)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse run config")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &cfg, nil
}

// Build assembles the configured stages from the registry. Misconfiguration
// surfaces here, before any ticket is touched.
func (c *RunConfig) Build(reg *stage.Registry) ([]stage.Stage, error) {
	if len(c.Stages) == 0 {
		return nil, eris.New("pipeline: run config declares no stages")
	}

	seen := make(map[string]bool, len(c.Stages))
	stages := make([]stage.Stage, 0, len(c.Stages))
	for _, sc := range c.Stages {
		if sc.Name == "" {
			return nil, eris.New("pipeline: stage missing name")
		}
		if seen[sc.Name] {
			return nil, eris.Errorf("pipeline: duplicate stage name %q", sc.Name)
		}
		seen[sc.Name] = true

		threshold := quality.Threshold(sc.ReprocessThreshold)
		if !threshold.Valid() {
			return nil, eris.Errorf("pipeline: stage %s: invalid reprocess threshold %q", sc.Name, sc.ReprocessThreshold)
		}

		rules, err := sc.SkipRules.build()
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: stage %s", sc.Name)
		}

		st, err := reg.Build(sc.Technique, sc.Name, stage.Config{
			SkipRules:          rules,
			ReprocessThreshold: threshold,
		}, sc.Settings)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: stage %s", sc.Name)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func (c SkipRulesConfig) build() (reprocess.SkipRules, error) {
	rules := reprocess.SkipRules{
		SkipIfLocked:   c.SkipIfLocked,
		SkipConfidence: c.SkipConfidence,
		SkipTechniques: c.SkipTechniques,
		SkipApproaches: c.SkipApproaches,
	}
	for _, name := range c.SkipTiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			return rules, err
		}
		rules.SkipTiers = append(rules.SkipTiers, tier)
	}
	return rules, nil
}
