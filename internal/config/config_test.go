package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Nodes)
	assert.Equal(t, 65432, cfg.Port)
	assert.Equal(t, "distortion_calibration.json", cfg.IntrinsicsFile)
	assert.Equal(t, 50, cfg.MarkerSetSize)
	assert.Equal(t, 100*time.Millisecond, cfg.TriangulationInterval)
	assert.Equal(t, time.Duration(0), cfg.MaxObservationAge)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeConfig(t, "mocap.json", `{
		"nodes": ["pi-mocap-1.local", "pi-mocap-2.local", "10.0.0.5:7000"],
		"port": 65432,
		"calibrationDir": "/var/lib/mocap/calib",
		"triangulationInterval": "50ms",
		"maxObservationAge": "2s",
		"listen": ":9090"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Nodes, 3)
	assert.Equal(t, "/var/lib/mocap/calib", cfg.CalibrationDir)
	assert.Equal(t, 50*time.Millisecond, cfg.TriangulationInterval)
	assert.Equal(t, 2*time.Second, cfg.MaxObservationAge)
	assert.Equal(t, ":9090", cfg.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate node", `{"nodes": ["a.local", "a.local"]}`},
		{"empty node", `{"nodes": [""]}`},
		{"bad port", `{"port": 70000}`},
		{"zero marker set", `{"markerSetSize": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "bad.json", tt.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestNodeAddrAndID(t *testing.T) {
	cfg := &Config{Port: 65432}

	assert.Equal(t, "pi-mocap-1.local:65432", cfg.NodeAddr("pi-mocap-1.local"))
	assert.Equal(t, "10.0.0.5:7000", cfg.NodeAddr("10.0.0.5:7000"))
	assert.Equal(t, "[::1]:65432", cfg.NodeAddr("[::1]"))

	assert.Equal(t, "pi-mocap-1.local", cfg.NodeID("pi-mocap-1.local"))
	assert.Equal(t, "10.0.0.5", cfg.NodeID("10.0.0.5:7000"))
}
