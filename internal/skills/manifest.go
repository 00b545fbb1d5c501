package skills

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadManifests reads every *.yaml file directly under dir and parses it as
// a Manifest. Grounded on the teacher's YAML-manifest skill declarations,
// trimmed of the teacher's git/registry remote-discovery sources (spec.md's
// skill set is a fixed, boot-time registry — no hot dynamic fetch).
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
		if m.Name == "" {
			return nil, fmt.Errorf("manifest %s missing name", path)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
