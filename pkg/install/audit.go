package install

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/plyght/clay-plyght/pkg/manifest"
)

// AuditIssue describes one disk-vs-lock inconsistency Audit found.
type AuditIssue struct {
	Package string
	Reason  string
}

// Audit is a read-only check that the installed node_modules tree agrees
// with the lock file: every lock entry has a matching, correctly
// versioned package directory, and every installed package directory has
// a lock entry. It never modifies the project; Install and Uninstall are
// the only operations that do.
func Audit(projectDir string, lf *manifest.LockFile) ([]AuditIssue, error) {
	var issues []AuditIssue

	for name, entry := range lf.Packages {
		dir := filepath.Join(projectDir, "node_modules", name)
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			issues = append(issues, AuditIssue{Package: name, Reason: "in lock file but missing from node_modules"})
			continue
		}
		if err != nil || !info.IsDir() {
			issues = append(issues, AuditIssue{Package: name, Reason: "node_modules entry is not a directory"})
			continue
		}
		installedVersion, ok := readInstalledVersion(dir)
		if !ok {
			issues = append(issues, AuditIssue{Package: name, Reason: "installed package.json missing or unreadable"})
			continue
		}
		if installedVersion != entry.Version {
			issues = append(issues, AuditIssue{Package: name, Reason: "installed version " + installedVersion + " does not match lock version " + entry.Version})
		}
	}

	nodeModules := filepath.Join(projectDir, "node_modules")
	entries, err := os.ReadDir(nodeModules)
	if err != nil && !os.IsNotExist(err) {
		return issues, err
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".bin" {
			continue
		}
		if _, ok := lf.Packages[e.Name()]; !ok {
			issues = append(issues, AuditIssue{Package: e.Name(), Reason: "present in node_modules but absent from lock file"})
		}
	}
	return issues, nil
}

func readInstalledVersion(pkgDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return "", false
	}
	var m struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return "", false
	}
	return m.Version, true
}
