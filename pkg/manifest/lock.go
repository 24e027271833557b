package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// LockSchemaVersion is written into every lock file clay produces.
const LockSchemaVersion = "1"

// RootRequester is the synthetic requester name standing in for the
// project's own direct dependency list, as opposed to a package that
// depends on another package.
const RootRequester = "root"

// LockEntry is one package's resolved state in the lock file.
type LockEntry struct {
	Version      string            `json:"version" toml:"version"`
	ResolvedURL  string            `json:"resolved_url" toml:"resolved_url"`
	Integrity    string            `json:"integrity" toml:"integrity"`
	Dependencies map[string]string `json:"dependencies,omitempty" toml:"dependencies,omitempty"`
	RequiredBy   []string          `json:"required_by" toml:"required_by"`
}

// LockFile is clay's lock manifest: a schema version plus every resolved
// package, keyed by name.
type LockFile struct {
	Version  string               `json:"version" toml:"version"`
	Packages map[string]LockEntry `json:"packages" toml:"packages"`
}

// Encoding selects how a LockFile is serialized to disk.
type Encoding int

const (
	// EncodingTOML writes the lock file as a tagged-table text document.
	EncodingTOML Encoding = iota
	// EncodingJSON writes the lock file as plain JSON.
	EncodingJSON
)

// DefaultLockFileName returns the conventional lock file name for enc.
func DefaultLockFileName(enc Encoding) string {
	if enc == EncodingJSON {
		return "clay-lock.json"
	}
	return "clay-lock.toml"
}

// NewLockFile returns an empty, schema-stamped lock file.
func NewLockFile() *LockFile {
	return &LockFile{Version: LockSchemaVersion, Packages: map[string]LockEntry{}}
}

// LoadLockFile reads and decodes the lock file at path, inferring the
// encoding from its extension. A missing file yields a fresh LockFile.
func LoadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewLockFile(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	lf := NewLockFile()
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, lf)
	} else {
		err = toml.Unmarshal(data, lf)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if lf.Packages == nil {
		lf.Packages = map[string]LockEntry{}
	}
	return lf, nil
}

// Save serializes lf to path using enc.
func (lf *LockFile) Save(path string, enc Encoding) error {
	var data []byte
	var err error
	if enc == EncodingJSON {
		data, err = json.MarshalIndent(lf, "", "  ")
	} else {
		data, err = toml.Marshal(lf)
	}
	if err != nil {
		return errors.Wrap(err, "marshaling lock file")
	}
	return os.WriteFile(path, data, 0o644)
}

// AddPackage inserts or updates name's entry, unioning requester into its
// required_by set.
func (lf *LockFile) AddPackage(name string, entry LockEntry, requester string) {
	existing, ok := lf.Packages[name]
	if !ok {
		entry.RequiredBy = unionSorted(entry.RequiredBy, requester)
		lf.Packages[name] = entry
		return
	}
	existing.Version = entry.Version
	existing.ResolvedURL = entry.ResolvedURL
	existing.Integrity = entry.Integrity
	existing.Dependencies = entry.Dependencies
	existing.RequiredBy = unionSorted(existing.RequiredBy, requester)
	lf.Packages[name] = existing
}

// CanRemovePackage reports whether removing requester from name's
// required_by set would empty it, and what remains. It does not mutate
// the lock file.
func (lf *LockFile) CanRemovePackage(name, requester string) (emptyAfterRemove bool, remaining []string) {
	entry, ok := lf.Packages[name]
	if !ok {
		return true, nil
	}
	remaining = without(entry.RequiredBy, requester)
	return len(remaining) == 0, remaining
}

// RemovePackage removes requester from name's required_by set, deleting
// the entry entirely once it empties. Returns whether the entry was fully
// removed.
func (lf *LockFile) RemovePackage(name, requester string) bool {
	entry, ok := lf.Packages[name]
	if !ok {
		return false
	}
	remaining := without(entry.RequiredBy, requester)
	if len(remaining) == 0 {
		delete(lf.Packages, name)
		return true
	}
	entry.RequiredBy = remaining
	lf.Packages[name] = entry
	return false
}

func unionSorted(set []string, add string) []string {
	for _, s := range set {
		if s == add {
			return set
		}
	}
	out := append(append([]string{}, set...), add)
	sort.Strings(out)
	return out
}

func without(set []string, remove string) []string {
	var out []string
	for _, s := range set {
		if s != remove {
			out = append(out, s)
		}
	}
	return out
}
