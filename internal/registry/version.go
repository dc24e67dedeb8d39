package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KindFinal is the prediction kind of the versioned final family.
const KindFinal = "final"

// Version is one in-scope (model, prompt, kind) combination.
type Version struct {
	ModelVersion  string `yaml:"model_version" json:"model_version" mapstructure:"model_version"`
	PromptVersion string `yaml:"prompt_version" json:"prompt_version" mapstructure:"prompt_version"`
	Kind          string `yaml:"kind" json:"kind" mapstructure:"kind"`
}

// Key returns the version key for v.
func (v Version) Key() string {
	return v.ModelVersion + v.PromptVersion
}

type versionPair struct {
	model, prompt string
}

// VersionRegistry is the allow-list of final-family versions. Membership is
// exact string equality on both model and prompt version.
type VersionRegistry struct {
	versions []Version
	index    map[versionPair]Version
}

// NewVersionRegistry indexes the given versions. Entries with an empty kind
// are treated as final; entries of any other kind are kept for listing but
// never admit a final-family snapshot.
func NewVersionRegistry(versions []Version) *VersionRegistry {
	r := &VersionRegistry{
		versions: make([]Version, 0, len(versions)),
		index:    make(map[versionPair]Version, len(versions)),
	}
	for _, v := range versions {
		if v.Kind == "" {
			v.Kind = KindFinal
		}
		p := versionPair{v.ModelVersion, v.PromptVersion}
		if _, dup := r.index[p]; dup {
			continue
		}
		r.versions = append(r.versions, v)
		if v.Kind == KindFinal {
			r.index[p] = v
		}
	}
	return r
}

// Contains reports whether (model, prompt) is an in-scope final version.
func (r *VersionRegistry) Contains(modelVersion, promptVersion string) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[versionPair{modelVersion, promptVersion}]
	return ok
}

// Versions returns the registered versions in configuration order.
func (r *VersionRegistry) Versions() []Version {
	if r == nil {
		return nil
	}
	return r.versions
}

// Len returns the number of final versions admitted.
func (r *VersionRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.index)
}

type versionFile struct {
	Versions []Version `yaml:"versions"`
}

// LoadVersionsFromFile reads a YAML (or JSON) file holding either a
// top-level list of versions or a mapping with a "versions" list.
func LoadVersionsFromFile(path string) ([]Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read versions file")
	}

	var list []Version
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped versionFile
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal versions file")
	}
	return wrapped.Versions, nil
}

// Load builds a registry from inline versions plus an optional file.
// File entries follow inline entries.
func Load(inline []Version, path string) (*VersionRegistry, error) {
	versions := append([]Version(nil), inline...)
	if path != "" {
		fromFile, err := LoadVersionsFromFile(path)
		if err != nil {
			return nil, err
		}
		versions = append(versions, fromFile...)
	}
	return NewVersionRegistry(versions), nil
}
