package harness

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tcassar-diss/abiprobe/probe"
)

var ErrConfigInvalid = errors.New("harness config invalid")

// Duration decodes "500ms"-style strings from yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string

	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("failed to decode duration node: %w", err)
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", s, err)
	}

	*d = Duration(dur)

	return nil
}

// Config is the harness's knobs. The probe itself has no configuration
// surface: everything here is about how the harness observes it.
type Config struct {
	ProbePath string   `yaml:"probe_path"`
	Args      []string `yaml:"args"`

	// Timeout bounds a single run. A conformant probe exits in well under a
	// second; hitting the timeout is the only way a returned termination
	// call becomes observable.
	Timeout Duration `yaml:"timeout"`

	// Grace is how long to watch a stalled probe for fresh output or
	// syscall activity before declaring it pinned at the fallback loop.
	Grace Duration `yaml:"grace"`

	// Runs is how many times to execute the probe. Output must be
	// byte-identical on every run.
	Runs int `yaml:"runs"`

	ExpectedStatus int    `yaml:"expected_status"`
	ExpectedOutput string `yaml:"expected_output"`

	StatsPath string `yaml:"stats_path"`
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:        Duration(10 * time.Second),
		Grace:          Duration(2 * time.Second),
		Runs:           3,
		ExpectedStatus: probe.ExitStatus,
		ExpectedOutput: probe.Message,
		StatsPath:      "./stats/verdicts.json",
	}
}

// LoadConfig reads yaml over the defaults, so a config file only needs to
// name the fields it changes.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(bts, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ProbePath == "" {
		return fmt.Errorf("%w: probe_path must be set", ErrConfigInvalid)
	}

	if c.Runs < 1 {
		return fmt.Errorf("%w: runs must be >= 1, got %d", ErrConfigInvalid, c.Runs)
	}

	if c.Timeout <= 0 || c.Grace <= 0 {
		return fmt.Errorf("%w: timeout and grace must be positive", ErrConfigInvalid)
	}

	return nil
}
