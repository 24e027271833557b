// Package npmspec parses the package specifications clay accepts on the
// command line or reads out of a project manifest: a package name paired
// with a version_spec that is either "latest", an exact version, or a
// semver range expression.
package npmspec

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/plyght/clay-plyght/internal/semver"
)

// Kind classifies a version_spec for the resolver's simplified range policy.
type Kind int

const (
	// KindLatest is the literal "latest" tag.
	KindLatest Kind = iota
	// KindExact is a fully-qualified MAJOR.MINOR.PATCH[-pre] version with no
	// range operator.
	KindExact
	// KindRange is any caret, tilde, comparison, or wildcard expression. The
	// resolver treats every KindRange spec identically to KindLatest.
	KindRange
)

// PackageSpec is a requested dependency: a name and the version constraint
// the user or manifest attached to it.
type PackageSpec struct {
	Name        string
	VersionSpec string
}

var exactRE = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

// ClassifyVersionSpec reports how the resolver should treat a version_spec
// string: the literal "latest" tag, an exact version, or a range.
func ClassifyVersionSpec(spec string) Kind {
	switch {
	case spec == "" || spec == "latest":
		return KindLatest
	case exactRE.MatchString(spec):
		return KindExact
	default:
		return KindRange
	}
}

// IsExact reports whether spec is syntactically an exact version (no range
// operator), per ClassifyVersionSpec.
func IsExact(spec string) bool {
	return ClassifyVersionSpec(spec) == KindExact
}

// String renders the spec in "name@version_spec" form, the worklist key
// format the resolver uses.
func (p PackageSpec) String() string {
	if p.VersionSpec == "" {
		return p.Name
	}
	return p.Name + "@" + p.VersionSpec
}

// Parse splits a "name@version_spec" argument into a PackageSpec. A bare
// name with no "@" defaults to VersionSpec "latest". Scoped packages
// ("@scope/name@version") are handled by searching for the last "@" that
// isn't the leading scope marker.
func Parse(arg string) (PackageSpec, error) {
	if arg == "" {
		return PackageSpec{}, errors.New("empty package spec")
	}
	scoped := strings.HasPrefix(arg, "@")
	body := arg
	if scoped {
		body = arg[1:]
	}
	if body == "" {
		return PackageSpec{}, errors.Errorf("invalid package spec %q: missing name", arg)
	}
	if idx := strings.LastIndex(body, "@"); idx >= 0 {
		name := body[:idx]
		version := body[idx+1:]
		if scoped {
			name = "@" + name
		}
		if name == "" {
			return PackageSpec{}, errors.Errorf("invalid package spec %q: missing name", arg)
		}
		return PackageSpec{Name: name, VersionSpec: version}, nil
	}
	name := body
	if scoped {
		name = "@" + name
	}
	return PackageSpec{Name: name, VersionSpec: "latest"}, nil
}

// ResolveVersion picks the concrete version ClassifyVersionSpec(spec)
// indicates, given the registry's dist-tags and the set of published
// versions. It implements the resolver's simplified range policy: anything
// that isn't a syntactically exact version resolves to whatever "latest"
// currently points at.
func ResolveVersion(spec string, latest string, published map[string]bool) (string, error) {
	switch ClassifyVersionSpec(spec) {
	case KindExact:
		if !published[spec] {
			return "", &VersionNotFound{VersionSpec: spec}
		}
		return spec, nil
	default:
		if latest == "" || !published[latest] {
			return "", &VersionNotFound{VersionSpec: spec}
		}
		return latest, nil
	}
}

// VersionNotFound is returned when a spec names no published version.
type VersionNotFound struct {
	VersionSpec string
}

func (e *VersionNotFound) Error() string {
	return "no matching version for " + e.VersionSpec
}

// Compare orders two exact version strings using semantic-versioning rules.
// Callers that only need "is this newer" for exact versions can use this
// instead of the resolver's latest-tag shortcut.
func Compare(a, b string) int {
	return semver.Cmp(a, b)
}
