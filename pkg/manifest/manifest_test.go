package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProjectMissingFileYieldsDefault(t *testing.T) {
	p, err := LoadProject(filepath.Join(t.TempDir(), "package.json"))
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if p.Dependencies == nil {
		t.Fatal("Dependencies map is nil")
	}
}

func TestLoadProjectMalformedYieldsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if p.Dependencies == nil {
		t.Fatal("Dependencies map is nil for malformed input")
	}
}

func TestAddAndRemoveDependency(t *testing.T) {
	p := defaultProject()
	p.AddDependency("left-pad", "^1.0.0")
	p.AddDevDependency("mocha", "^9.0.0")
	if p.Dependencies["left-pad"] != "^1.0.0" {
		t.Fatalf("Dependencies[left-pad] = %q; want ^1.0.0", p.Dependencies["left-pad"])
	}
	p.RemoveDependency("left-pad")
	if _, ok := p.Dependencies["left-pad"]; ok {
		t.Fatal("left-pad still present after RemoveDependency")
	}
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := defaultProject()
	a.AddDependency("b", "1.0.0")
	a.AddDependency("a", "2.0.0")

	b := defaultProject()
	b.AddDependency("a", "2.0.0")
	b.AddDependency("b", "1.0.0")

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("Fingerprint() depends on insertion order")
	}

	b.AddDependency("c", "3.0.0")
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("Fingerprint() did not change after adding a dependency")
	}
}

func TestProjectSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	p := defaultProject()
	p.Name = "demo"
	p.AddDependency("left-pad", "^1.0.0")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if reloaded.Name != "demo" || reloaded.Dependencies["left-pad"] != "^1.0.0" {
		t.Fatalf("reloaded project = %+v", reloaded)
	}
}

// TestProjectSavePreservesUnmodeledFields guards against a mutating
// operation (install/uninstall, both of which call Save) silently
// destroying manifest fields clay recognizes but doesn't otherwise touch,
// or fields it doesn't recognize at all (spec §6: "unknown fields are
// preserved on round-trip").
func TestProjectSavePreservesUnmodeledFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	original := `{
		"name": "demo",
		"version": "1.0.0",
		"description": "a demo package",
		"main": "index.js",
		"bin": {"demo": "./bin/demo.js"},
		"scripts": {"test": "mocha"},
		"peerDependencies": {"react": "^18.0.0"},
		"optionalDependencies": {"fsevents": "^2.0.0"},
		"workspaces": ["packages/*"],
		"dependencies": {"left-pad": "^1.0.0"},
		"engines": {"node": ">=18"},
		"license": "MIT"
	}`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	// Simulate what Install/Uninstall do: mutate one dependency, then save.
	p.AddDependency("right-pad", "^1.0.0")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := LoadProject(path)
	if err != nil {
		t.Fatalf("reloading after Save: %v", err)
	}
	if reloaded.Description != "a demo package" {
		t.Fatalf("Description = %q; want preserved", reloaded.Description)
	}
	if reloaded.Main != "index.js" {
		t.Fatalf("Main = %q; want preserved", reloaded.Main)
	}
	var bin map[string]string
	if err := json.Unmarshal(reloaded.Bin, &bin); err != nil {
		t.Fatalf("unmarshaling Bin: %v", err)
	}
	if len(bin) != 1 || bin["demo"] != "./bin/demo.js" {
		t.Fatalf("Bin = %s; want preserved", reloaded.Bin)
	}
	if reloaded.Scripts["test"] != "mocha" {
		t.Fatalf("Scripts[test] = %q; want mocha", reloaded.Scripts["test"])
	}
	if reloaded.PeerDependencies["react"] != "^18.0.0" {
		t.Fatalf("PeerDependencies[react] = %q; want ^18.0.0", reloaded.PeerDependencies["react"])
	}
	if reloaded.OptionalDependencies["fsevents"] != "^2.0.0" {
		t.Fatalf("OptionalDependencies[fsevents] = %q; want ^2.0.0", reloaded.OptionalDependencies["fsevents"])
	}
	var workspaces []string
	if err := json.Unmarshal(reloaded.Workspaces, &workspaces); err != nil {
		t.Fatalf("unmarshaling Workspaces: %v", err)
	}
	if len(workspaces) != 1 || workspaces[0] != "packages/*" {
		t.Fatalf("Workspaces = %v; want [packages/*]", workspaces)
	}
	if reloaded.Dependencies["right-pad"] != "^1.0.0" {
		t.Fatal("new dependency added before Save did not survive")
	}
	if reloaded.Dependencies["left-pad"] != "^1.0.0" {
		t.Fatal("pre-existing dependency was dropped by Save")
	}
	if reloaded.Extra == nil {
		t.Fatal("Extra is nil; want engines/license preserved")
	}
	var engines struct {
		Node string `json:"node"`
	}
	if err := json.Unmarshal(reloaded.Extra["engines"], &engines); err != nil {
		t.Fatalf("unmarshaling Extra[engines]: %v", err)
	}
	if engines.Node != ">=18" {
		t.Fatalf("Extra[engines].node = %q; want >=18", engines.Node)
	}
	var license string
	if err := json.Unmarshal(reloaded.Extra["license"], &license); err != nil {
		t.Fatalf("unmarshaling Extra[license]: %v", err)
	}
	if license != "MIT" {
		t.Fatalf("Extra[license] = %q; want MIT", license)
	}
}
