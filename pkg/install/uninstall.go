package install

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/plyght/clay-plyght/pkg/manifest"
)

// AlreadyRequired is returned by Uninstall when another package still
// lists name in its required_by set.
type AlreadyRequired struct {
	Name       string
	Requesters []string
}

func (e *AlreadyRequired) Error() string {
	return e.Name + " is still required by " + strings.Join(e.Requesters, ", ")
}

// Uninstall removes name if nothing else in the lock requires it: its
// executables, its package directory, its manifest entry, and its own
// required_by entry for "root". It then recurses into name's direct
// dependencies per the lock, treating name itself as the requester being
// dropped.
func (in *Installer) Uninstall(name, projectDir string, proj *manifest.Project, lf *manifest.LockFile) error {
	return in.uninstall(name, manifest.RootRequester, projectDir, proj, lf)
}

func (in *Installer) uninstall(name, requester, projectDir string, proj *manifest.Project, lf *manifest.LockFile) error {
	entry, ok := lf.Packages[name]
	if !ok {
		return nil
	}
	empty, remaining := lf.CanRemovePackage(name, requester)
	if !empty {
		// Still required by someone else; just drop this requester's claim.
		in.withLock(lf, func() { lf.RemovePackage(name, requester) })
		return &AlreadyRequired{Name: name, Requesters: remaining}
	}

	dir := filepath.Join(projectDir, "node_modules", name)
	if err := removeExecutables(projectDir, dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", dir)
	}
	if proj != nil {
		proj.RemoveDependency(name)
	}
	in.withLock(lf, func() { lf.RemovePackage(name, requester) })

	for dep := range entry.Dependencies {
		if err := in.uninstall(dep, name, projectDir, nil, lf); err != nil {
			if _, ok := err.(*AlreadyRequired); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func (in *Installer) withLock(lf *manifest.LockFile, fn func()) {
	if in.LockGuard != nil {
		in.LockGuard.Write(fn)
		return
	}
	fn()
}

func removeExecutables(projectDir, pkgDir string) error {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var be binEntry
	if err := json.Unmarshal(data, &be); err != nil {
		return nil
	}
	bins, err := parseBinField(be, be.Name)
	if err != nil || len(bins) == 0 {
		return nil
	}
	binDir := filepath.Join(projectDir, "node_modules", ".bin")
	for cmd := range bins {
		os.Remove(filepath.Join(binDir, cmd))
		os.Remove(filepath.Join(binDir, cmd+".cmd"))
	}
	return nil
}
