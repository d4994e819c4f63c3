package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dyuri/mwmcodec/internal/feature"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s failed: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	require.Equal(t, feature.ScaleTable{5, 10, 14, 17}, c.Scales)
	require.Equal(t, "info", c.LogLevel)
	require.Equal(t, feature.MaxInlinePoints, c.InlineMaxPoints)
	require.Equal(t, feature.MaxInlineStrip, c.InlineMaxStrip)
	require.Nil(t, c.SimplifyEps)
	require.Equal(t, uint64(0), c.Header().Base)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "mwmcodec.toml", `
scales = [4, 9, 13]

[log]
level = "debug"

[dataset]
base = 12345
dir = "out"

[generator]
inline_max_points = 8
simplify_epsilon = [0.1, 0.01, 0.001]

[source]
codepage = 1250
`)

	c, err := Load(New(), path)
	require.NoError(t, err)
	require.Equal(t, feature.ScaleTable{4, 9, 13}, c.Scales)
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, uint64(12345), c.Base)
	require.Equal(t, "out", c.DatasetDir)
	require.Equal(t, 8, c.InlineMaxPoints)
	require.Equal(t, []float64{0.1, 0.01, 0.001}, c.SimplifyEps)
	require.Equal(t, 1250, c.CodePage)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MWM_LOG_LEVEL", "warn")
	t.Setenv("MWM_DATASET_DIR", "/tmp/ds")

	c, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, "warn", c.LogLevel)
	require.Equal(t, "/tmp/ds", c.DatasetDir)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"descending scales": "scales = [10, 5]",
		"too many scales":   "scales = [1, 2, 3, 4, 5]",
		"inline points":     "[generator]\ninline_max_points = 16",
		"tolerance count":   "[generator]\nsimplify_epsilon = [0.1]",
		"log level":         "[log]\nlevel = \"loud\"",
		"broken file":       "scales = [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(New(), writeFile(t, "c.toml", content))
			require.Error(t, err)
		})
	}

	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	logger := logrus.New()
	file := filepath.Join(t.TempDir(), "mwm.log")

	closer, err := SetupLogging(logger, "debug", file)
	require.NoError(t, err)
	logger.WithField("feature", 7).Debug("feature written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	line := string(data)
	require.True(t, strings.Contains(line, "[DEBUG]"), "log line %q", line)
	require.True(t, strings.Contains(line, "feature written"), "log line %q", line)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = SetupLogging(logger, "loud", "")
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	require.True(t, errors.Is(err, ErrNoConfig))

	path := filepath.Join(dir, "mwmcodec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scales: [5]\n"), 0o644))
	got, err := Find(dir)
	require.NoError(t, err)
	require.Equal(t, path, got)

	c, err := Load(New(), got)
	require.NoError(t, err)
	require.Equal(t, feature.ScaleTable{5}, c.Scales)
}
