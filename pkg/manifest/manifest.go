// Package manifest reads and writes clay's two project-level state files:
// the package.json project manifest and the clay-lock lock file, tracking
// reverse dependencies so a package is only removed once nothing else
// requires it.
package manifest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Project is the in-memory form of package.json. Every top-level field
// spec §6 recognizes gets a typed slot; anything else clay doesn't
// understand survives in Extra and is merged back in on Save, so an
// install or uninstall never silently drops a field it never looks at.
type Project struct {
	Name                 string
	Version              string
	Description          string
	Main                 string
	Bin                  json.RawMessage // string or {cmd: path} form; passed through verbatim
	Dependencies         map[string]string
	DevDependencies      map[string]string
	PeerDependencies     map[string]string
	OptionalDependencies map[string]string
	Scripts              map[string]string
	Workspaces           json.RawMessage // array or object form; passed through verbatim

	// Extra holds every recognized-or-not top-level field this struct
	// doesn't declare a slot for, keyed by field name.
	Extra map[string]json.RawMessage
}

// recognizedFields are the package.json keys Project decodes into named
// fields; everything else falls into Extra.
var recognizedFields = []string{
	"name", "version", "description", "main", "bin",
	"dependencies", "devDependencies", "peerDependencies",
	"optionalDependencies", "scripts", "workspaces",
}

// MarshalJSON writes every populated recognized field plus whatever
// survived in Extra, so fields clay doesn't model round-trip unchanged.
func (p *Project) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	setString := func(key, v string) error {
		if v == "" {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	setMap := func(key string, v map[string]string) error {
		if len(v) == 0 {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	if err := setString("name", p.Name); err != nil {
		return nil, err
	}
	if err := setString("version", p.Version); err != nil {
		return nil, err
	}
	if err := setString("description", p.Description); err != nil {
		return nil, err
	}
	if err := setString("main", p.Main); err != nil {
		return nil, err
	}
	if len(p.Bin) > 0 {
		out["bin"] = p.Bin
	}
	if err := setMap("dependencies", p.Dependencies); err != nil {
		return nil, err
	}
	if err := setMap("devDependencies", p.DevDependencies); err != nil {
		return nil, err
	}
	if err := setMap("peerDependencies", p.PeerDependencies); err != nil {
		return nil, err
	}
	if err := setMap("optionalDependencies", p.OptionalDependencies); err != nil {
		return nil, err
	}
	if err := setMap("scripts", p.Scripts); err != nil {
		return nil, err
	}
	if len(p.Workspaces) > 0 {
		out["workspaces"] = p.Workspaces
	}
	for key, raw := range p.Extra {
		if _, ok := out[key]; !ok {
			out[key] = raw
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes every recognized field into its named slot and
// keeps everything else in Extra.
func (p *Project) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extract := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(v, dst)
	}
	if err := extract("name", &p.Name); err != nil {
		return err
	}
	if err := extract("version", &p.Version); err != nil {
		return err
	}
	if err := extract("description", &p.Description); err != nil {
		return err
	}
	if err := extract("main", &p.Main); err != nil {
		return err
	}
	if v, ok := raw["bin"]; ok {
		p.Bin = append(json.RawMessage(nil), v...)
	}
	if err := extract("dependencies", &p.Dependencies); err != nil {
		return err
	}
	if err := extract("devDependencies", &p.DevDependencies); err != nil {
		return err
	}
	if err := extract("peerDependencies", &p.PeerDependencies); err != nil {
		return err
	}
	if err := extract("optionalDependencies", &p.OptionalDependencies); err != nil {
		return err
	}
	if err := extract("scripts", &p.Scripts); err != nil {
		return err
	}
	if v, ok := raw["workspaces"]; ok {
		p.Workspaces = append(json.RawMessage(nil), v...)
	}

	extra := map[string]json.RawMessage{}
	for key, v := range raw {
		if containsField(recognizedFields, key) {
			continue
		}
		extra[key] = v
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	return nil
}

func containsField(fields []string, key string) bool {
	for _, f := range fields {
		if f == key {
			return true
		}
	}
	return false
}

// defaultProject is substituted whenever the manifest file is missing,
// empty, or fails to parse.
func defaultProject() *Project {
	return &Project{
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{},
	}
}

// LoadProject reads path with tolerance: a missing, empty, or malformed
// file yields a fresh default project rather than an error.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultProject(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(data) == 0 {
		return defaultProject(), nil
	}
	p := defaultProject()
	if err := json.Unmarshal(data, p); err != nil {
		return defaultProject(), nil
	}
	if p.Dependencies == nil {
		p.Dependencies = map[string]string{}
	}
	if p.DevDependencies == nil {
		p.DevDependencies = map[string]string{}
	}
	return p, nil
}

// Save writes p to path as stably-ordered, pretty-printed JSON.
func (p *Project) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling project manifest")
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// AddDependency records name@spec under dependencies, overwriting any
// existing entry.
func (p *Project) AddDependency(name, spec string) {
	p.Dependencies[name] = spec
}

// AddDevDependency records name@spec under devDependencies.
func (p *Project) AddDevDependency(name, spec string) {
	p.DevDependencies[name] = spec
}

// RemoveDependency deletes name from both dependency maps.
func (p *Project) RemoveDependency(name string) {
	delete(p.Dependencies, name)
	delete(p.DevDependencies, name)
}

// Fingerprint computes a deterministic SHA-1 over every (kind, name, spec)
// triple in the project, sorted for order-independence, so two in-memory
// projects can be compared for equality without a deep struct diff.
func (p *Project) Fingerprint() string {
	type triple struct{ kind, name, spec string }
	var triples []triple
	for name, spec := range p.Dependencies {
		triples = append(triples, triple{"dependencies", name, spec})
	}
	for name, spec := range p.DevDependencies {
		triples = append(triples, triple{"devDependencies", name, spec})
	}
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].kind != triples[j].kind {
			return triples[i].kind < triples[j].kind
		}
		if triples[i].name != triples[j].name {
			return triples[i].name < triples[j].name
		}
		return triples[i].spec < triples[j].spec
	})
	h := sha1.New()
	for _, t := range triples {
		h.Write([]byte(t.kind))
		h.Write([]byte{0})
		h.Write([]byte(t.name))
		h.Write([]byte{0})
		h.Write([]byte(t.spec))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
