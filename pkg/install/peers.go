package install

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/plyght/clay-plyght/internal/semver"
)

// PeerStatus describes one declared peer dependency's state relative to
// what's actually installed.
type PeerStatus struct {
	Package      string
	Peer         string
	DeclaredSpec string
	Installed    string // empty if missing
	Satisfied    bool
}

type peerManifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// ScanPeers walks every installed package's manifest under
// projectDir/node_modules and reports the state of each declared peer
// dependency. The scan never modifies anything on disk.
func ScanPeers(projectDir string) ([]PeerStatus, error) {
	nodeModules := filepath.Join(projectDir, "node_modules")
	entries, err := os.ReadDir(nodeModules)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	installed := map[string]string{}
	var manifests []peerManifest
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".bin" {
			continue
		}
		m, ok := readPeerManifest(filepath.Join(nodeModules, e.Name()))
		if !ok {
			continue
		}
		installed[m.Name] = m.Version
		manifests = append(manifests, m)
	}

	var statuses []PeerStatus
	for _, m := range manifests {
		for peer, spec := range m.PeerDependencies {
			version, ok := installed[peer]
			status := PeerStatus{Package: m.Name, Peer: peer, DeclaredSpec: spec}
			if !ok {
				statuses = append(statuses, status)
				continue
			}
			status.Installed = version
			status.Satisfied = satisfies(version, spec)
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func readPeerManifest(pkgDir string) (peerManifest, bool) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return peerManifest{}, false
	}
	var m peerManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return peerManifest{}, false
	}
	return m, true
}

// satisfies reports whether an installed exact version matches a declared
// peer spec. It uses the same simplified policy as the resolver: an exact
// spec must match exactly, anything else (range or "latest"-style) is
// treated as satisfied by any installed version, since clay does not
// implement a constraint solver.
func satisfies(installed, spec string) bool {
	if spec == "" || spec == "latest" || spec == "*" {
		return true
	}
	if semver.Cmp(installed, spec) == 0 {
		return true
	}
	return !isExactSpec(spec)
}

func isExactSpec(spec string) bool {
	_, err := semver.New(spec)
	return err == nil
}

// Missing filters statuses down to peers that aren't installed at all.
func Missing(statuses []PeerStatus) []PeerStatus {
	var out []PeerStatus
	for _, s := range statuses {
		if s.Installed == "" {
			out = append(out, s)
		}
	}
	return out
}
