package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/plyght/clay-plyght/internal/digest"
	"github.com/plyght/clay-plyght/internal/urlx"
	"github.com/plyght/clay-plyght/pkg/manifest"
	"github.com/plyght/clay-plyght/pkg/registry"
	"github.com/plyght/clay-plyght/pkg/resolve"
	"github.com/plyght/clay-plyght/pkg/store"
)

func buildGzippedTarball(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(body))}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}

	sum, _, err := digest.SHA1Hex(bytes.NewReader(gz.Bytes()))
	if err != nil {
		t.Fatalf("SHA1Hex: %v", err)
	}
	return gz.Bytes(), sum
}

type fakeTarballClient struct {
	tarball []byte
}

func (f *fakeTarballClient) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(f.tarball))}, nil
}

func newTestInstaller(t *testing.T, tarball []byte) (*Installer, string) {
	t.Helper()
	client := &registry.Client{
		BaseURL: urlx.MustParse("https://registry.npmjs.org"),
		HTTP:    &fakeTarballClient{tarball: tarball},
	}
	cs := store.NewContentStore(filepath.Join(t.TempDir(), "content-store"))
	if err := cs.Initialize(); err != nil {
		t.Fatalf("ContentStore.Initialize: %v", err)
	}
	pc := store.NewProjectCache(filepath.Join(t.TempDir(), "project-cache"))
	return NewInstaller(client, cs, pc), t.TempDir()
}

func TestInstallSingleRoot(t *testing.T) {
	tarball, sum := buildGzippedTarball(t, map[string]string{
		"package.json": `{"name":"left-pad","version":"1.3.0"}`,
		"index.js":     "module.exports = function(){}",
	})
	in, projectDir := newTestInstaller(t, tarball)

	root := &resolve.ResolvedNode{
		Name:    "left-pad",
		Version: "1.3.0",
		Info: &registry.VersionInfo{
			Name: "left-pad", Version: "1.3.0",
			Dist: registry.DistInfo{Tarball: "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz", Shasum: sum},
		},
	}

	proj := manifest.Project{Dependencies: map[string]string{}, DevDependencies: map[string]string{}}
	lf := manifest.NewLockFile()
	summary, err := in.Install(context.Background(), []*resolve.ResolvedNode{root}, projectDir, &proj, lf)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(summary.Installed) != 1 {
		t.Fatalf("summary.Installed = %v; want 1 entry", summary.Installed)
	}

	data, err := os.ReadFile(filepath.Join(projectDir, "node_modules", "left-pad", "package.json"))
	if err != nil {
		t.Fatalf("reading installed package.json: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("installed package.json is empty")
	}

	if proj.Dependencies["left-pad"] != "1.3.0" {
		t.Fatalf("proj.Dependencies[left-pad] = %q; want 1.3.0", proj.Dependencies["left-pad"])
	}
	entry, ok := lf.Packages["left-pad"]
	if !ok {
		t.Fatal("lock file missing left-pad entry")
	}
	if len(entry.RequiredBy) != 1 || entry.RequiredBy[0] != manifest.RootRequester {
		t.Fatalf("RequiredBy = %v; want [root]", entry.RequiredBy)
	}
}

func TestInstallSkipsAlreadyPresentRoot(t *testing.T) {
	tarball, sum := buildGzippedTarball(t, map[string]string{"package.json": `{"name":"left-pad","version":"1.3.0"}`})
	in, projectDir := newTestInstaller(t, tarball)
	if err := os.MkdirAll(filepath.Join(projectDir, "node_modules", "left-pad"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	root := &resolve.ResolvedNode{
		Name: "left-pad", Version: "1.3.0",
		Info: &registry.VersionInfo{Dist: registry.DistInfo{Shasum: sum}},
	}
	lf := manifest.NewLockFile()
	summary, err := in.Install(context.Background(), []*resolve.ResolvedNode{root}, projectDir, nil, lf)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(summary.Skipped) != 1 || len(summary.Installed) != 0 {
		t.Fatalf("summary = %+v; want one skipped, zero installed", summary)
	}
}

func TestInstallSkipsCircularNode(t *testing.T) {
	tarball, sum := buildGzippedTarball(t, map[string]string{"package.json": `{"name":"a","version":"1.0.0"}`})
	in, projectDir := newTestInstaller(t, tarball)

	root := &resolve.ResolvedNode{
		Name: "a", Version: "1.0.0",
		Info:     &registry.VersionInfo{Dist: registry.DistInfo{Shasum: sum}},
		Children: []*resolve.ResolvedNode{{Name: resolve.CircularName}},
	}
	lf := manifest.NewLockFile()
	if _, err := in.Install(context.Background(), []*resolve.ResolvedNode{root}, projectDir, nil, lf); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, ok := lf.Packages[resolve.CircularName]; ok {
		t.Fatal("circular stub was recorded in the lock file")
	}
}
