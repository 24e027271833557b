// Package store implements clay's two on-disk caches: the Content Store, a
// global content-addressed object repository shared across every project on
// the machine, and the Project Cache, a simpler per-user tarball cache.
package store

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/plyght/clay-plyght/internal/archive"
	"github.com/plyght/clay-plyght/internal/digest"
)

// ContentAddress identifies a stored tarball by the SHA-1 of its raw bytes.
type ContentAddress struct {
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	Integrity string `json:"integrity"`
}

// PackageMetadata is the Content Store's per-version record.
type PackageMetadata struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Address      ContentAddress    `json:"address"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Files        []string          `json:"files"`
}

// DedupeReport summarizes how much disk space shared content hashes save.
type DedupeReport struct {
	Groups      [][]string `json:"groups"`
	BytesSaved  int64      `json:"bytes_saved"`
	GroupsCount int        `json:"groups_count"`
}

// Stats summarizes the store's current contents.
type Stats struct {
	Packages       int   `json:"packages"`
	UniqueObjects  int   `json:"unique_objects"`
	TotalBytes     int64 `json:"total_bytes"`
	DuplicateCount int   `json:"duplicate_count"`
	SpaceSaved     int64 `json:"space_saved"`
}

// ContentStore is a process-independent, user-home-scoped object store.
// Layout under Root:
//
//	content/<hash[0..2]>/<hash[2..]>.tar.gz
//	index/content.json
//	index/packages.json
//	trees/<hash[0..2]>/<hash[2..]>.json
type ContentStore struct {
	Root string

	mu       sync.RWMutex
	content  map[string]ContentAddress // hash -> address
	packages map[string]PackageMetadata // "name@version" -> metadata
}

// NewContentStore returns a store rooted at root. Call Initialize before
// use.
func NewContentStore(root string) *ContentStore {
	return &ContentStore{
		Root:     root,
		content:  map[string]ContentAddress{},
		packages: map[string]PackageMetadata{},
	}
}

func (s *ContentStore) contentDir() string  { return filepath.Join(s.Root, "content") }
func (s *ContentStore) indexDir() string    { return filepath.Join(s.Root, "index") }
func (s *ContentStore) treesDir() string    { return filepath.Join(s.Root, "trees") }
func (s *ContentStore) contentIndexPath() string {
	return filepath.Join(s.indexDir(), "content.json")
}
func (s *ContentStore) packagesIndexPath() string {
	return filepath.Join(s.indexDir(), "packages.json")
}

func shardedPath(base, hash, ext string) string {
	if len(hash) < 3 {
		return filepath.Join(base, hash+ext)
	}
	return filepath.Join(base, hash[:2], hash[2:]+ext)
}

// Initialize ensures the on-disk layout exists and loads both indices into
// memory.
func (s *ContentStore) Initialize() error {
	for _, dir := range []string{s.contentDir(), s.indexDir(), s.treesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := loadJSON(s.contentIndexPath(), &s.content); err != nil {
		return err
	}
	if err := loadJSON(s.packagesIndexPath(), &s.packages); err != nil {
		return err
	}
	if s.content == nil {
		s.content = map[string]ContentAddress{}
	}
	if s.packages == nil {
		s.packages = map[string]PackageMetadata{}
	}
	return nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a partial file
// at the final path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}

func (s *ContentStore) persistIndicesLocked() error {
	contentJSON, err := json.Marshal(s.content)
	if err != nil {
		return errors.Wrap(err, "marshaling content index")
	}
	if err := writeAtomic(s.contentIndexPath(), contentJSON); err != nil {
		return err
	}
	packagesJSON, err := json.Marshal(s.packages)
	if err != nil {
		return errors.Wrap(err, "marshaling packages index")
	}
	return writeAtomic(s.packagesIndexPath(), packagesJSON)
}

// Store computes the SHA-1 of tarball, writes a gzip-compressed copy to the
// sharded path if not already present, records the package's dependency
// map and file list, and persists both indices. If the hash already
// exists, the existing ContentAddress is returned without rewriting the
// object.
func (s *ContentStore) Store(name, version string, tarball []byte, integrity string) (ContentAddress, error) {
	hash, size, err := digest.SHA1Hex(bytes.NewReader(tarball))
	if err != nil {
		return ContentAddress{}, err
	}
	addr := ContentAddress{Hash: hash, Size: size, Integrity: integrity}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.content[hash]; !ok {
		objPath := shardedPath(s.contentDir(), hash, ".tar.gz")
		var buf bytes.Buffer
		if err := archive.CompressGzip(&buf, bytes.NewReader(tarball)); err != nil {
			return ContentAddress{}, err
		}
		if err := writeAtomic(objPath, buf.Bytes()); err != nil {
			return ContentAddress{}, err
		}
		s.content[hash] = addr
	}

	deps, files, err := inspectTarball(tarball)
	if err != nil {
		return ContentAddress{}, err
	}
	key := name + "@" + version
	s.packages[key] = PackageMetadata{
		Name:         name,
		Version:      version,
		Address:      addr,
		Dependencies: deps,
		Files:        files,
	}
	if err := s.persistIndicesLocked(); err != nil {
		return ContentAddress{}, err
	}
	return addr, nil
}

func inspectTarball(tarball []byte) (map[string]string, []string, error) {
	gr, err := gzip.NewReader(bytes.NewReader(tarball))
	if err == nil {
		defer gr.Close()
		return inspectTarReader(tar.NewReader(gr))
	}
	return inspectTarReader(tar.NewReader(bytes.NewReader(tarball)))
}

func inspectTarReader(tr *tar.Reader) (map[string]string, []string, error) {
	var deps map[string]string
	var files []string
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		rel, ok := stripPackagePrefix(h.Name)
		if !ok {
			continue
		}
		if h.Typeflag != 0 && h.Typeflag != '0' {
			continue
		}
		files = append(files, rel)
		if rel == "package.json" {
			var manifest struct {
				Dependencies map[string]string `json:"dependencies"`
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				continue
			}
			if err := json.Unmarshal(data, &manifest); err == nil {
				deps = manifest.Dependencies
			}
		}
	}
	return deps, files, nil
}

func stripPackagePrefix(name string) (string, bool) {
	const prefix = "package/"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

// Link decompresses the stored object for name@version into a fresh
// temporary directory, then moves the package/-stripped subtree to
// targetDir. Returns false if no record exists for name@version.
func (s *ContentStore) Link(name, version, targetDir string) (bool, error) {
	s.mu.RLock()
	meta, ok := s.packages[name+"@"+version]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	objPath := shardedPath(s.contentDir(), meta.Address.Hash, ".tar.gz")
	f, err := os.Open(objPath)
	if err != nil {
		return false, errors.Wrapf(err, "opening stored object for %s@%s", name, version)
	}
	defer f.Close()

	tmpDir := filepath.Join(os.TempDir(), "clay-link-"+uuid.New().String())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return false, errors.Wrap(err, "creating temp dir")
	}
	defer os.RemoveAll(tmpDir)

	gr, err := archive.DecompressGzip(f)
	if err != nil {
		return false, err
	}
	defer gr.Close()

	// Store accepts both plain tar and registry .tgz bytes, so an object may
	// hold a second gzip layer under the store's own; unwrap it if present.
	raw, err := io.ReadAll(gr)
	if err != nil {
		return false, errors.Wrapf(err, "decompressing stored object for %s@%s", name, version)
	}
	var tarStream io.Reader = bytes.NewReader(raw)
	if inner, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
		defer inner.Close()
		tarStream = inner
	}

	fs := osfs.New(tmpDir)
	if err := archive.ExtractTo(tar.NewReader(tarStream), fs); err != nil {
		return false, errors.Wrapf(err, "extracting %s@%s", name, version)
	}

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		return false, errors.Wrapf(err, "moving extracted tree to %s", targetDir)
	}
	return true, nil
}

// DedupeReport groups installed packages by shared content hash and
// reports the bytes that sharing saves relative to storing each copy
// independently.
func (s *ContentStore) DedupeReport() DedupeReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHash := map[string][]string{}
	for key, meta := range s.packages {
		byHash[meta.Address.Hash] = append(byHash[meta.Address.Hash], key)
	}
	var report DedupeReport
	for hash, keys := range byHash {
		if len(keys) < 2 {
			continue
		}
		report.Groups = append(report.Groups, keys)
		report.BytesSaved += int64(len(keys)-1) * s.content[hash].Size
	}
	report.GroupsCount = len(report.Groups)
	return report
}

// GC removes PackageMetadata entries not present in activeKeys, then
// removes content objects no longer referenced by any remaining metadata.
// It persists both indices on success.
func (s *ContentStore) GC(activeKeys map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.packages {
		if !activeKeys[key] {
			delete(s.packages, key)
		}
	}
	referenced := map[string]bool{}
	for _, meta := range s.packages {
		referenced[meta.Address.Hash] = true
	}
	for hash := range s.content {
		if referenced[hash] {
			continue
		}
		objPath := shardedPath(s.contentDir(), hash, ".tar.gz")
		if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing unreferenced object %s", hash)
		}
		delete(s.content, hash)
	}
	return s.persistIndicesLocked()
}

// Stats reports the store's current contents.
func (s *ContentStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, addr := range s.content {
		total += addr.Size
	}
	report := s.dedupeReportLocked()
	duplicates := 0
	for _, group := range report.Groups {
		duplicates += len(group) - 1
	}
	return Stats{
		Packages:       len(s.packages),
		UniqueObjects:  len(s.content),
		TotalBytes:     total,
		DuplicateCount: duplicates,
		SpaceSaved:     report.BytesSaved,
	}
}

func (s *ContentStore) dedupeReportLocked() DedupeReport {
	byHash := map[string][]string{}
	for key, meta := range s.packages {
		byHash[meta.Address.Hash] = append(byHash[meta.Address.Hash], key)
	}
	var report DedupeReport
	for hash, keys := range byHash {
		if len(keys) < 2 {
			continue
		}
		report.Groups = append(report.Groups, keys)
		report.BytesSaved += int64(len(keys)-1) * s.content[hash].Size
	}
	report.GroupsCount = len(report.Groups)
	return report
}
