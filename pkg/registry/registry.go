// Package registry implements the HTTPS client clay uses to fetch package
// metadata and tarballs from an npm-compatible registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/plyght/clay-plyght/internal/digest"
	"github.com/plyght/clay-plyght/internal/httpx"
	"github.com/plyght/clay-plyght/internal/ratex"
	"github.com/plyght/clay-plyght/internal/urlx"
)

// DefaultRegistryURL is the registry clay talks to when no override is
// configured.
var DefaultRegistryURL = urlx.MustParse("https://registry.npmjs.org")

// DistTags maps a registry's named distribution tags (at minimum "latest")
// to the version they currently point at.
type DistTags struct {
	Latest string `json:"latest"`
}

// VersionInfo is the per-version metadata a registry publishes, trimmed to
// the fields the installer and resolver actually consume.
type VersionInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	DevDeps      map[string]string `json:"devDependencies"`
	Peer         map[string]string `json:"peerDependencies"`
	Bin          json.RawMessage   `json:"bin"`
	Dist         DistInfo          `json:"dist"`
}

// DistInfo describes where and how to verify the tarball for one version.
type DistInfo struct {
	Tarball string `json:"tarball"`
	Shasum  string `json:"shasum"`
}

// RegistryResponse is the condensed install metadata the resolver and
// installer need for a package: every published version plus the
// dist-tags that name "latest".
type RegistryResponse struct {
	Name     string                 `json:"name"`
	DistTags DistTags               `json:"dist-tags"`
	Versions map[string]VersionInfo `json:"versions"`
}

// NotFound is returned by GetInfo when the registry answers 404.
type NotFound struct{ Name string }

func (e *NotFound) Error() string { return "package not found: " + e.Name }

// RegistryError is returned by GetInfo for any other non-2xx response.
type RegistryError struct {
	Name   string
	Status string
}

func (e *RegistryError) Error() string {
	return "registry error for " + e.Name + ": " + e.Status
}

// TransportError wraps a connection-level failure (DNS, TLS, reset, etc.)
// distinct from a well-formed non-2xx response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityMismatch is digest.Mismatch re-exported under the name the
// installer's override-prompt logic matches on.
type IntegrityMismatch = digest.Mismatch

// OverridePolicy decides, when a downloaded tarball fails integrity
// verification, whether to accept it anyway. It models the interactive
// "accept this package despite the mismatch?" prompt; a nil policy always
// rejects.
type OverridePolicy interface {
	Override(name, version, want, got string) bool
}

// Client fetches package metadata and tarball bytes from a single registry.
// It is safe for concurrent use and cheap to copy; the underlying
// http.Client's connection pool is shared across every clone.
type Client struct {
	BaseURL  *url.URL
	HTTP     httpx.BasicClient
	Limiter  *ratex.BackoffLimiter
	Override OverridePolicy
}

// DefaultBackoffMinimum is the floor period NewClient's backoff limiter
// starts at and returns to once the registry is healthy again.
const DefaultBackoffMinimum = 50 * time.Millisecond

// NewClient returns a Client talking to DefaultRegistryURL over
// http.DefaultClient wrapped with a clay User-Agent, paced by a
// ratex.BackoffLimiter so a struggling registry slows every concurrent
// caller down together rather than each retrying independently.
func NewClient() *Client {
	return &Client{
		BaseURL: DefaultRegistryURL,
		HTTP:    &httpx.WithUserAgent{BasicClient: http.DefaultClient, UserAgent: "clay/1"},
		Limiter: ratex.NewBackoffLimiter(DefaultBackoffMinimum),
	}
}

// GetInfo fetches the condensed install metadata for name.
func (c *Client) GetInfo(ctx context.Context, name string) (*RegistryResponse, error) {
	u, err := url.Parse(path.Join("/", name))
	if err != nil {
		return nil, errors.Wrap(err, "building registry URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL.ResolveReference(u).String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")
	resp, err := c.do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetching " + name, Err: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFound{Name: name}
	case resp.StatusCode/100 != 2:
		return nil, &RegistryError{Name: name, Status: resp.Status}
	}
	var info RegistryResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrapf(err, "decoding metadata for %s", name)
	}
	return &info, nil
}

// Download fetches the tarball described by dist, verifies it against
// dist.Shasum, and writes the verified bytes to dest (fsync'd before
// returning). The tarball URL may be absolute or registry-relative.
func (c *Client) Download(ctx context.Context, name, version string, dist DistInfo, dest io.Writer) error {
	tarballURL, err := urlx.Resolve(c.BaseURL, dist.Tarball)
	if err != nil {
		return errors.Wrap(err, "resolving tarball URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL.String(), nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	resp, err := c.do(req)
	if err != nil {
		return &TransportError{Op: "downloading " + name + "@" + version, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &RegistryError{Name: name, Status: resp.Status}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "buffering tarball")
	}
	got, verifyErr := digest.Verify(bytes.NewReader(body), dist.Shasum)
	if verifyErr != nil {
		if c.Override == nil || !c.Override.Override(name, version, dist.Shasum, got) {
			return verifyErr
		}
	}
	if _, err := dest.Write(body); err != nil {
		return errors.Wrap(err, "writing tarball")
	}
	if f, ok := dest.(interface{ Sync() error }); ok {
		if err := f.Sync(); err != nil {
			return errors.Wrap(err, "fsyncing tarball")
		}
	}
	return nil
}

// maxTransportAttempts bounds the bare connection-level retry `do` performs
// before surfacing a TransportError. Non-2xx responses are never retried
// here; only a failure to complete the round trip at all is.
const maxTransportAttempts = 3

func (c *Client) do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 1; attempt <= maxTransportAttempts; attempt++ {
		if c.Limiter != nil {
			if werr := c.Limiter.Wait(req.Context()); werr != nil {
				return nil, werr
			}
		}
		resp, err = c.HTTP.Do(req)
		if c.Limiter != nil {
			if err != nil || resp.StatusCode/100 == 5 {
				c.Limiter.Backoff()
			} else {
				c.Limiter.Success()
			}
		}
		if err == nil {
			return resp, nil
		}
		if attempt == maxTransportAttempts || req.Context().Err() != nil {
			return nil, err
		}
	}
	return resp, err
}
