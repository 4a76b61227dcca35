package harness_test

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tcassar-diss/abiprobe/harness"
	"github.com/tcassar-diss/abiprobe/probe"
)

func TestDefaultConfig(t *testing.T) {
	cfg := harness.DefaultConfig()

	require.Equal(t, probe.ExitStatus, cfg.ExpectedStatus)
	require.Equal(t, probe.Message, cfg.ExpectedOutput)
	require.Equal(t, 3, cfg.Runs)
	require.Greater(t, cfg.Timeout, cfg.Grace)
}

func TestLoadConfig(t *testing.T) {
	fp := path.Join(t.TempDir(), "abiprobe.yaml")

	err := os.WriteFile(fp, []byte(
		"probe_path: ./probe\n"+
			"timeout: 250ms\n"+
			"grace: 100ms\n"+
			"runs: 1\n",
	), 0o644)
	require.NoError(t, err, "failed to write config fixture")

	cfg, err := harness.LoadConfig(fp)
	require.NoError(t, err, "failed to load config")

	require.Equal(t, "./probe", cfg.ProbePath)
	require.EqualValues(t, 250*time.Millisecond, cfg.Timeout)
	require.EqualValues(t, 100*time.Millisecond, cfg.Grace)
	require.Equal(t, 1, cfg.Runs)

	// untouched fields keep their defaults
	require.Equal(t, probe.ExitStatus, cfg.ExpectedStatus)
	require.Equal(t, probe.Message, cfg.ExpectedOutput)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	fp := path.Join(t.TempDir(), "abiprobe.yaml")

	err := os.WriteFile(fp, []byte("probe_path: ./probe\ntimeout: quickly\n"), 0o644)
	require.NoError(t, err)

	_, err = harness.LoadConfig(fp)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*harness.Config)
	}{
		{name: "missing probe path", mutate: func(c *harness.Config) { c.ProbePath = "" }},
		{name: "zero runs", mutate: func(c *harness.Config) { c.Runs = 0 }},
		{name: "no timeout", mutate: func(c *harness.Config) { c.Timeout = 0 }},
		{name: "no grace", mutate: func(c *harness.Config) { c.Grace = 0 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := harness.DefaultConfig()
			cfg.ProbePath = "./probe"

			c.mutate(cfg)

			require.ErrorIs(t, cfg.Validate(), harness.ErrConfigInvalid)
		})
	}
}
