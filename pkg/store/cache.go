package store

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/plyght/clay-plyght/internal/digest"
)

// ProjectCache is a per-user cache of raw, uncompressed tarballs keyed by
// name@version, exactly as fetched from the registry. It sits in front of
// the registry client: on install, the installer checks here before making
// a network request.
type ProjectCache struct {
	Root string
}

// NewProjectCache returns a cache rooted at root.
func NewProjectCache(root string) *ProjectCache {
	return &ProjectCache{Root: root}
}

func (c *ProjectCache) path(name, version string) string {
	return filepath.Join(c.Root, name, version+".tgz")
}

// Get returns the cached tarball bytes for name@version if present and its
// digest matches want. A digest mismatch evicts the entry and reports a
// cache miss rather than an error, so the caller falls through to the
// network.
func (c *ProjectCache) Get(name, version, want string) (data []byte, ok bool, err error) {
	p := c.path(name, version)
	data, err = os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cache entry %s@%s", name, version)
	}
	if _, verifyErr := digest.Verify(bytes.NewReader(data), want); verifyErr != nil {
		os.Remove(p)
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores data as the cache entry for name@version.
func (c *ProjectCache) Put(name, version string, data []byte) error {
	return writeAtomic(c.path(name, version), data)
}

// CacheEntry describes one cached tarball for CacheInfo.
type CacheEntry struct {
	Name    string
	Version string
	Bytes   int64
}

// CacheInfo enumerates every cached tarball and its size.
func (c *ProjectCache) CacheInfo() ([]CacheEntry, error) {
	var entries []CacheEntry
	names, err := os.ReadDir(c.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing cache root")
	}
	for _, nameDir := range names {
		if !nameDir.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(c.Root, nameDir.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "listing cache entries for %s", nameDir.Name())
		}
		for _, v := range versions {
			info, err := v.Info()
			if err != nil {
				continue
			}
			version := v.Name()
			const ext = ".tgz"
			if len(version) > len(ext) && version[len(version)-len(ext):] == ext {
				version = version[:len(version)-len(ext)]
			}
			entries = append(entries, CacheEntry{
				Name:    nameDir.Name(),
				Version: version,
				Bytes:   info.Size(),
			})
		}
	}
	return entries, nil
}

// CacheClear removes every cached tarball.
func (c *ProjectCache) CacheClear() error {
	entries, err := os.ReadDir(c.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "listing cache root")
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.Root, e.Name())); err != nil {
			return errors.Wrapf(err, "removing %s", e.Name())
		}
	}
	return nil
}

// CacheDir returns the cache's root directory.
func (c *ProjectCache) CacheDir() string { return c.Root }
