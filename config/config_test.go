package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clwillingham/legion/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  dir: /tmp/legion-test
limits:
  max_depth: 3
  max_iterations: 5
providers:
  anthropic:
    api_key: sk-test
    model: claude-3-5-sonnet-20241022
approval:
  timeout: 30s
  policies:
    write_file: deny
    communicate: auto
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/legion-test", cfg.Storage.Dir)
	assert.Equal(t, 3, cfg.Limits.MaxDepth)
	assert.Equal(t, 5, cfg.Limits.MaxIterations)
	assert.Equal(t, "sk-test", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Approval.Timeout)
	assert.Equal(t, "deny", cfg.Approval.Policies["write_file"])
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  dir: data
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Limits.MaxDepth)
	assert.Equal(t, 10, cfg.Limits.MaxIterations)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, time.Duration(0), cfg.Approval.Timeout)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LEGION_TEST_KEY", "from-env")
	path := writeConfig(t, `
storage:
  dir: data
providers:
  openai:
    api_key: ${LEGION_TEST_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers.OpenAI.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, content := range map[string]string{
		"empty storage dir": "storage:\n  dir: \"\"\n",
		"zero max depth":    "storage:\n  dir: data\nlimits:\n  max_depth: 0\n",
		"bad duration":      "storage:\n  dir: data\napproval:\n  timeout: soon\n",
		"bad policy":        "storage:\n  dir: data\napproval:\n  policies:\n    write_file: maybe\n",
		"bad yaml":          "storage: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
