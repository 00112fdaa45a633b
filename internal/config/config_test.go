package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSource, c.Source)
	assert.Equal(t, "skip", c.MissingColumnPolicy)
	assert.Equal(t, 60*time.Second, c.HTTPTimeout())
	assert.Equal(t, time.Duration(0), c.RefreshInterval())
	assert.Equal(t, "127.0.0.1:8501", c.ListenAddr)
	assert.Equal(t, []string{"Aido", "Iceberg", "Xanadu"}, c.Genotypes)
	assert.InDelta(t, 1.0, c.LowessFrac, 1e-12)
}

func TestSaveThenLoadWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Global{
		Source:              "s3://bucket/level_4.csv",
		MissingColumnPolicy: "fail",
		HTTPTimeoutSec:      5,
		ListenAddr:          ":9000",
		LowessFrac:          0.5,
		Genotypes:           []string{"Aido"},
		S3Region:            "us-west-2",
		S3PathStyle:         true,
		S3SecretAccessKey:   "secret",
	}
	require.NoError(t, Save(in, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	t.Setenv("PHENODASH_LISTEN_ADDR", ":9100")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/level_4.csv", c.Source)
	assert.Equal(t, "fail", c.MissingColumnPolicy)
	assert.Equal(t, 5*time.Second, c.HTTPTimeout())
	assert.Equal(t, ":9100", c.ListenAddr)
	assert.Equal(t, []string{"Aido"}, c.Genotypes)
	assert.True(t, c.S3PathStyle)
	assert.Equal(t, "secret", c.S3SecretAccessKey)
}

func TestLoadRejectsBadFrac(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lowess_frac: 1.5\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lowess_frac")
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("PHENODASH_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("PHENODASH_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PHENODASH_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(env, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PHENODASH_TEST_DOTENV"))
}
