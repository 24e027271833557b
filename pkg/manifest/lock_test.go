package manifest

import (
	"path/filepath"
	"testing"
)

func TestAddPackageSetsRequiredBy(t *testing.T) {
	lf := NewLockFile()
	lf.AddPackage("left-pad", LockEntry{Version: "1.3.0", Integrity: "abc"}, RootRequester)
	entry := lf.Packages["left-pad"]
	if len(entry.RequiredBy) != 1 || entry.RequiredBy[0] != RootRequester {
		t.Fatalf("RequiredBy = %v; want [%q]", entry.RequiredBy, RootRequester)
	}
}

func TestAddPackageUnionsRequesters(t *testing.T) {
	lf := NewLockFile()
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, "left-pad")
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, RootRequester)
	entry := lf.Packages["leftish"]
	if len(entry.RequiredBy) != 2 {
		t.Fatalf("RequiredBy = %v; want 2 entries", entry.RequiredBy)
	}
}

func TestCanRemovePackageDoesNotMutate(t *testing.T) {
	lf := NewLockFile()
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, "left-pad")
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, RootRequester)

	empty, remaining := lf.CanRemovePackage("leftish", "left-pad")
	if empty {
		t.Fatal("CanRemovePackage() empty = true; want false (root still requires it)")
	}
	if len(remaining) != 1 || remaining[0] != RootRequester {
		t.Fatalf("remaining = %v; want [%q]", remaining, RootRequester)
	}
	if len(lf.Packages["leftish"].RequiredBy) != 2 {
		t.Fatal("CanRemovePackage() mutated the lock file")
	}
}

func TestRemovePackageDeletesWhenEmpty(t *testing.T) {
	lf := NewLockFile()
	lf.AddPackage("left-pad", LockEntry{Version: "1.3.0"}, RootRequester)
	removed := lf.RemovePackage("left-pad", RootRequester)
	if !removed {
		t.Fatal("RemovePackage() = false; want true")
	}
	if _, ok := lf.Packages["left-pad"]; ok {
		t.Fatal("entry still present after its required_by emptied")
	}
}

func TestRemovePackageKeepsEntryWithRemainingRequesters(t *testing.T) {
	lf := NewLockFile()
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, "left-pad")
	lf.AddPackage("leftish", LockEntry{Version: "1.0.0"}, RootRequester)
	removed := lf.RemovePackage("leftish", "left-pad")
	if removed {
		t.Fatal("RemovePackage() = true; want false, root still requires it")
	}
	if len(lf.Packages["leftish"].RequiredBy) != 1 {
		t.Fatalf("RequiredBy = %v; want 1 entry", lf.Packages["leftish"].RequiredBy)
	}
}

func TestLockFileSaveLoadRoundTripTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clay-lock.toml")
	lf := NewLockFile()
	lf.AddPackage("left-pad", LockEntry{Version: "1.3.0", ResolvedURL: "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz", Integrity: "abc"}, RootRequester)
	if err := lf.Save(path, EncodingTOML); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := LoadLockFile(path)
	if err != nil {
		t.Fatalf("LoadLockFile() error = %v", err)
	}
	if reloaded.Packages["left-pad"].Version != "1.3.0" {
		t.Fatalf("reloaded version = %q; want 1.3.0", reloaded.Packages["left-pad"].Version)
	}
}

func TestLockFileSaveLoadRoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clay-lock.json")
	lf := NewLockFile()
	lf.AddPackage("left-pad", LockEntry{Version: "1.3.0", Integrity: "abc"}, RootRequester)
	if err := lf.Save(path, EncodingJSON); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reloaded, err := LoadLockFile(path)
	if err != nil {
		t.Fatalf("LoadLockFile() error = %v", err)
	}
	if reloaded.Packages["left-pad"].Integrity != "abc" {
		t.Fatalf("reloaded integrity = %q; want abc", reloaded.Packages["left-pad"].Integrity)
	}
}

func TestLoadLockFileMissingYieldsEmpty(t *testing.T) {
	lf, err := LoadLockFile(filepath.Join(t.TempDir(), "clay-lock.toml"))
	if err != nil {
		t.Fatalf("LoadLockFile() error = %v", err)
	}
	if len(lf.Packages) != 0 {
		t.Fatalf("Packages = %v; want empty", lf.Packages)
	}
}
