package localapi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleOptions struct {
	Engine  string        `yaml:"engine"`
	Timeout time.Duration `yaml:"timeout"`
	Queues  []string      `yaml:"queues"`
}

func writeManifest(t *testing.T, libDir, service, content string) {
	dir := filepath.Join(libDir, ImplDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, service+".yaml"), []byte(content), 0o600))
}

func TestLoadManifest(t *testing.T) {
	libDir := t.TempDir()
	writeManifest(t, libDir, "svc", "engine: memory\ntimeout: 2s\nqueues: [a, b]\n")

	m, err := LoadManifest(libDir, "svc")
	require.NoError(t, err)
	assert.Equal(t, "svc", m.Service)
	assert.Equal(t, ManifestPath(libDir, "svc"), m.Path)

	opts := sampleOptions{Engine: "default"}
	require.NoError(t, m.Decode(&opts))
	assert.Equal(t, sampleOptions{Engine: "memory", Timeout: 2 * time.Second, Queues: []string{"a", "b"}}, opts)
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(t.TempDir(), "svc")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadManifestInvalidYAML(t *testing.T) {
	libDir := t.TempDir()
	writeManifest(t, libDir, "svc", "engine: [unclosed\n")
	_, err := LoadManifest(libDir, "svc")
	assert.Error(t, err)
}

func TestEmptyManifestKeepsDefaults(t *testing.T) {
	opts := sampleOptions{Engine: "default"}
	require.NoError(t, NewManifest("svc", "  \n").Decode(&opts))
	assert.Equal(t, "default", opts.Engine)
}

func TestManifestRejectsUnknownFields(t *testing.T) {
	var opts sampleOptions
	err := NewManifest("svc", "engin: memory").Decode(&opts)
	assert.Error(t, err)
}
