package localapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ImplDir is the directory under the library directory that holds service manifests.
const ImplDir = "impl"

// Manifest is the artifact that makes a local service available: a YAML file named after the
// service, whose contents are the service's options.
type Manifest struct {
	Service string
	Path    string
	data    []byte
}

// ManifestPath returns where the manifest of a service is expected.
func ManifestPath(libDir, service string) string {
	return filepath.Join(libDir, ImplDir, service+".yaml")
}

// LoadManifest reads the manifest of a service. A missing file is reported with an error that
// satisfies errors.Is(err, os.ErrNotExist).
func LoadManifest(libDir, service string) (Manifest, error) {
	path := ManifestPath(libDir, service)
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Service: service, Path: path, data: data}
	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s is not valid YAML: %w", path, err)
	}
	return m, nil
}

// NewManifest creates a manifest from YAML text, for services that are configured in code.
func NewManifest(service, yamlText string) Manifest {
	return Manifest{Service: service, data: []byte(yamlText)}
}

// Decode parses the manifest's options into a service-specific struct. An empty manifest leaves
// the struct unchanged, so callers can preset defaults. Unknown fields are an error.
func (m Manifest) Decode(target interface{}) error {
	if len(bytes.TrimSpace(m.data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(m.data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		where := m.Path
		if where == "" {
			where = m.Service
		}
		return fmt.Errorf("invalid options in manifest %s: %w", where, err)
	}
	return nil
}
