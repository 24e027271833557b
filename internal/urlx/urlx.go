// Package urlx provides small net/url helpers used when a registry response
// advertises a tarball location relative to the registry's own base URL.
package urlx

import "net/url"

// MustParse calls url.Parse and panics on error. Used only for URLs that are
// known at compile time (e.g. default registry base URLs).
func MustParse(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}

// Resolve returns ref as resolved against base, matching the semantics of
// url.URL.ResolveReference. It's used to turn a dist.tarball value that a
// registry published as a path into an absolute download URL; absolute
// dist.tarball values pass through unchanged.
func Resolve(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(u), nil
}
