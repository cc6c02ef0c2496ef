package tasks_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tasks "github.com/sambatech/gotasks"
)

func validConfig() tasks.Config {
	return tasks.Config{
		TaskPool:            "videos",
		TaskTimeout:         120,
		Workers:             3,
		UnknownTasksRetries: 50,
		UnknownTasksDelay:   10,
		MaxWorkers:          6,
		ScaleFactor:         100,
		WhenWindow:          300,
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*tasks.Config)
		wantErr bool
	}{
		{"valid", func(c *tasks.Config) {}, false},
		{"empty pool", func(c *tasks.Config) { c.TaskPool = "" }, true},
		{"uppercase pool", func(c *tasks.Config) { c.TaskPool = "Videos" }, true},
		{"zero timeout", func(c *tasks.Config) { c.TaskTimeout = 0 }, true},
		{"zero workers", func(c *tasks.Config) { c.Workers = 0 }, true},
		{"zero unknown retries", func(c *tasks.Config) { c.UnknownTasksRetries = 0 }, true},
		{"zero unknown delay", func(c *tasks.Config) { c.UnknownTasksDelay = 0 }, true},
		{"negative max workers", func(c *tasks.Config) { c.MaxWorkers = -1 }, true},
		{"max workers below floor", func(c *tasks.Config) { c.MaxWorkers = 2; c.Workers = 3 }, true},
		{"max workers disables scaling at zero", func(c *tasks.Config) { c.MaxWorkers = 0 }, false},
		{"zero scale factor", func(c *tasks.Config) { c.ScaleFactor = 0 }, true},
		{"zero when window", func(c *tasks.Config) { c.WhenWindow = 0 }, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(&cfg)
			err := cfg.Validate()
			if c.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tasks.ErrConfiguration)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestLoadConfigFromEnv checks the envconfig-backed entry point reads
// prefixed environment variables and applies documented defaults for ones
// left unset (SPEC_FULL.md §6).
func TestLoadConfigFromEnv(t *testing.T) {
	const prefix = "GOTASKS_TEST"
	vars := map[string]string{
		"GOTASKS_TEST_TASK_POOL":    "videos",
		"GOTASKS_TEST_TASK_TIMEOUT": "60",
		"GOTASKS_TEST_WORKERS":      "2",
	}
	for k, v := range vars {
		require.NoError(t, os.Setenv(k, v))
	}
	t.Cleanup(func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	})

	cfg, err := tasks.LoadConfigFromEnv(prefix)
	require.NoError(t, err)
	assert.Equal(t, "videos", cfg.TaskPool)
	assert.Equal(t, 60, cfg.TaskTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 50, cfg.UnknownTasksRetries, "unset fields fall back to their envconfig default")
	assert.Equal(t, 6, cfg.MaxWorkers)
}

func TestLoadConfigFromEnv_MissingRequired(t *testing.T) {
	os.Unsetenv("GOTASKS_TEST2_TASK_POOL")
	_, err := tasks.LoadConfigFromEnv("GOTASKS_TEST2")
	require.Error(t, err)
}
