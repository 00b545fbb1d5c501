package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadManifestsParsesYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "search.yaml", `
name: search
tools:
  - name: web_search
    tool_name: web_search
    description: searches the web
`)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}
	if manifests[0].Name != "search" {
		t.Fatalf("expected manifest name search, got %q", manifests[0].Name)
	}
	if len(manifests[0].Tools) != 1 || manifests[0].Tools[0].ToolName != "web_search" {
		t.Fatalf("unexpected tools: %+v", manifests[0].Tools)
	}
}

func TestLoadManifestsRejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.yaml", `
tools:
  - name: x
    tool_name: x
`)

	if _, err := LoadManifests(dir); err == nil {
		t.Fatalf("expected error for manifest missing name")
	}
}

func TestLoadManifestsEmptyDir(t *testing.T) {
	dir := t.TempDir()
	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected no manifests, got %d", len(manifests))
	}
}
