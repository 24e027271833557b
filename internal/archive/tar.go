// Package archive extracts and inspects the gzip-compressed tar archives
// that npm-style registries serve as package tarballs.
package archive

import (
	"archive/tar"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
)

// StripComponent is the conventional top-level directory npm publish
// tooling wraps every tarball in. Extraction strips exactly this one level.
const StripComponent = "package"

// ExtractTo writes the contents of tr into fs, stripping the leading
// "package/" path component every published tarball carries (spec §6).
// Entries outside that prefix are skipped rather than treated as an error,
// since some registries include loose top-level files.
func ExtractTo(tr *tar.Reader, fs billy.Filesystem) error {
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar header")
		}
		rel, ok := stripPrefix(h.Name)
		if !ok || rel == "" {
			continue
		}
		if err := writeEntry(fs, rel, h, tr); err != nil {
			return errors.Wrapf(err, "extracting %s", h.Name)
		}
	}
}

func stripPrefix(name string) (string, bool) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	parts := strings.SplitN(clean, "/", 2)
	if len(parts) != 2 || parts[0] != StripComponent {
		return "", false
	}
	if strings.Contains(parts[1], "..") {
		return "", false
	}
	return parts[1], true
}

func writeEntry(fs billy.Filesystem, rel string, h *tar.Header, tr *tar.Reader) error {
	switch h.Typeflag {
	case tar.TypeDir:
		return fs.MkdirAll(rel, h.FileInfo().Mode())
	case tar.TypeSymlink:
		return fs.Symlink(h.Linkname, rel)
	case tar.TypeReg, tar.TypeRegA:
		if dir := path.Dir(rel); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := fs.Create(rel)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(f, tr); err != nil {
			return err
		}
		return nil
	default:
		// Device files, fifos, etc. never appear in npm tarballs; skip rather
		// than fail the whole extraction over an exotic header.
		return nil
	}
}

// ListFiles returns the (prefix-stripped) path of every regular file in tr
// without extracting to disk.
func ListFiles(tr *tar.Reader) ([]string, error) {
	var files []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading tar header")
		}
		if h.Typeflag != tar.TypeReg && h.Typeflag != tar.TypeRegA {
			continue
		}
		if rel, ok := stripPrefix(h.Name); ok && rel != "" {
			files = append(files, rel)
		}
	}
}
