package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/gil"
)

func TestDefault_Valid(t *testing.T) {
	d := Default()
	require.NoError(t, d.Validate())
	assert.Equal(t, ABIFull, d.ABI)
	assert.Equal(t, gil.ModeStandard, d.GILMode)
	assert.False(t, d.Limited())
}

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Target)
		wantErr bool
	}{
		{"defaults", func(*Target) {}, false},
		{"limited abi", func(t *Target) { t.ABI = ABILimited }, false},
		{"disabled gil", func(t *Target) { t.GILMode = gil.ModeDisabled }, false},
		{"unknown abi", func(t *Target) { t.ABI = "stable" }, true},
		{"unknown gil mode", func(t *Target) { t.GILMode = "free" }, true},
		{"negative version", func(t *Target) { t.MinVersion.Minor = -1 }, true},
		{"zero pool", func(t *Target) { t.Threads.PoolSize = 0 }, true},
		{"bad level", func(t *Target) { t.Logging.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Default()
			tt.mutate(target)
			err := target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	target, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), target)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
abi: limited
gil_mode: disabled
min_version:
  major: 1
  minor: 2
threads:
  pool_size: 4
`), 0o644))

	t.Setenv("HOSTBRIDGE_THREADS__POOL_SIZE", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("gil-mode", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--gil-mode=standard", "--log-level=debug"}))

	target, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, ABILimited, target.ABI, "file overrides default")
	assert.Equal(t, 1, target.MinVersion.Major)
	assert.Equal(t, 2, target.MinVersion.Minor)
	assert.Equal(t, 8, target.Threads.PoolSize, "env overrides file")
	assert.Equal(t, gil.ModeStandard, target.GILMode, "flag overrides file")
	assert.Equal(t, "debug", target.Logging.Level)
}

func TestLoad_UnsetFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("abi", "limited", "")
	require.NoError(t, flags.Parse(nil))

	target, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, ABIFull, target.ABI)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOSTBRIDGE_ABI", "bogus")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLogging_Build(t *testing.T) {
	logger, err := Logging{Level: "debug", Development: true}.Build()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = Logging{Level: "loud"}.Build()
	assert.Error(t, err)
}
