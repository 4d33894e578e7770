package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresAtLeastOneModel(t *testing.T) {
	out := &bytes.Buffer{}
	_, shouldExit, err := Parse([]string{"manifests/"}, out)
	require.False(t, shouldExit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-require")
}

func TestParseNoPathPrintsUsageAndExits(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseFullConfig(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"-require", "Camera, Lidar",
		"-device", "camera_dev=cam0, lidar_dev=lidar0",
		"-dot-dir", "/tmp/plans",
		"-log-level", "debug",
		"manifests/",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.NotNil(t, cfg)

	assert.Equal(t, "manifests/", cfg.ManifestsPath)
	assert.Equal(t, []string{"Camera", "Lidar"}, cfg.Requirements)
	assert.Equal(t, map[string]string{"camera_dev": "cam0", "lidar_dev": "lidar0"}, cfg.DeviceSelections)
	assert.Equal(t, "/tmp/plans", cfg.DotDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Strict)
}

func TestParseStrictFlag(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, _, err := Parse([]string{"-require", "Camera", "-strict", "manifests/"}, out)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Strict)
}

func TestParseRejectsInvalidLogFormat(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := Parse([]string{"-require", "Camera", "-log-format", "xml", "manifests/"}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log-format")
}

func TestParseRejectsMalformedDeviceSelection(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := Parse([]string{"-require", "Camera", "-device", "not-a-pair", "manifests/"}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-device")
}
