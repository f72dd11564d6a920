// internal/registermap/load.go
package registermap

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed maps/*.yaml
var builtinMaps embed.FS

// Categories accepted in a descriptor's category override.
var Categories = []string{"power", "daily_total", "lifetime_total", "diagnostic", "status", "identity"}

// ------------------------------------------------------------
// YAML schema
// ------------------------------------------------------------

type mapFile struct {
	Key         string                    `yaml:"key"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Notes       string                    `yaml:"notes"`
	Extends     string                    `yaml:"extends"`
	Status      string                    `yaml:"status"`
	Optional    []Range                   `yaml:"optional"`
	Input       map[uint16]descriptorFile `yaml:"input"`
	Holding     map[uint16]descriptorFile `yaml:"holding"`
}

type descriptorFile struct {
	Name          string   `yaml:"name"`
	Scale         *float64 `yaml:"scale"`
	Unit          string   `yaml:"unit"`
	Pair          *uint16  `yaml:"pair"`
	CombinedScale *float64 `yaml:"combined_scale"`
	CombinedUnit  string   `yaml:"combined_unit"`
	Signed        bool     `yaml:"signed"`
	Access        string   `yaml:"access"`
	Min           *float64 `yaml:"min"`
	Max           *float64 `yaml:"max"`
	Category      string   `yaml:"category"`
	Desc          string   `yaml:"desc"`
}

func (f descriptorFile) descriptor(addr uint16) (Descriptor, error) {
	d := Descriptor{
		Address:      addr,
		Name:         f.Name,
		Scale:        1,
		Unit:         f.Unit,
		CombinedUnit: f.CombinedUnit,
		Signed:       f.Signed,
		Min:          f.Min,
		Max:          f.Max,
		Category:     f.Category,
		Desc:         f.Desc,
	}
	if f.Scale != nil {
		if *f.Scale == 0 {
			return d, fmt.Errorf("%w: %s (%d) has zero scale", ErrBadDescriptor, f.Name, addr)
		}
		d.Scale = *f.Scale
	}
	if f.Pair != nil {
		d.HasPair = true
		d.Pair = *f.Pair
	}
	if f.CombinedScale != nil {
		d.CombinedScale = *f.CombinedScale
	}

	switch f.Access {
	case "", "r", "ro":
		d.Access = AccessRead
	case "rw":
		d.Access = AccessReadWrite
	default:
		return d, fmt.Errorf("%w: %s (%d) has unknown access %q", ErrBadDescriptor, f.Name, addr, f.Access)
	}

	if f.Category != "" && !knownCategory(f.Category) {
		return d, fmt.Errorf("%w: %s (%d) has unknown category %q", ErrBadDescriptor, f.Name, addr, f.Category)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return d, fmt.Errorf("%w: %s (%d) has min > max", ErrBadDescriptor, f.Name, addr)
	}
	return d, nil
}

func knownCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// ------------------------------------------------------------
// Registry
// ------------------------------------------------------------

// Registry holds resolved maps by selection key.
type Registry struct {
	maps map[string]*Map
	keys []string
}

// LoadFS reads every *.yaml file in dir, flattens extends chains and
// validates each resulting map.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("registermap: list %s: %w", dir, err)
	}

	files := make(map[string]mapFile, len(entries))
	for _, name := range entries {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("registermap: read %s: %w", name, err)
		}

		var mf mapFile
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&mf); err != nil {
			return nil, fmt.Errorf("registermap: parse %s: %w", name, err)
		}
		if mf.Key == "" {
			return nil, fmt.Errorf("registermap: %s: key required", name)
		}
		if _, dup := files[mf.Key]; dup {
			return nil, fmt.Errorf("registermap: %s: duplicate key %q", name, mf.Key)
		}
		files[mf.Key] = mf
	}

	r := &Registry{maps: make(map[string]*Map, len(files))}
	for key := range files {
		spec, err := flatten(files, key, nil)
		if err != nil {
			return nil, err
		}
		m, err := Build(spec)
		if err != nil {
			return nil, err
		}
		if m.Input.Len() > 0 {
			if _, ok := m.Status(); !ok {
				return nil, fmt.Errorf("%w: map %s has no %q", ErrNoStatusRegister, key, m.StatusQuantity)
			}
		}
		r.maps[key] = m
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)

	return r, nil
}

// flatten resolves the extends chain of key into one independent spec.
// Child entries replace parent entries address by address.
func flatten(files map[string]mapFile, key string, seen []string) (Spec, error) {
	for _, s := range seen {
		if s == key {
			return Spec{}, fmt.Errorf("registermap: extends cycle through %q", key)
		}
	}

	mf, ok := files[key]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownMap, key)
	}

	spec := Spec{
		Input:   map[uint16]Descriptor{},
		Holding: map[uint16]Descriptor{},
	}
	if mf.Extends != "" {
		parent, err := flatten(files, mf.Extends, append(seen, key))
		if err != nil {
			return Spec{}, fmt.Errorf("registermap: %s extends %s: %w", key, mf.Extends, err)
		}
		spec = parent
	}

	spec.Key = mf.Key
	spec.Name = mf.Name
	spec.Description = mf.Description
	spec.Notes = mf.Notes
	if mf.Status != "" {
		spec.StatusQuantity = mf.Status
	}
	if len(mf.Optional) > 0 {
		spec.Optional = mf.Optional
	}

	if err := merge(spec.Input, mf.Input); err != nil {
		return Spec{}, wrapKey(key, "input", err)
	}
	if err := merge(spec.Holding, mf.Holding); err != nil {
		return Spec{}, wrapKey(key, "holding", err)
	}
	return spec, nil
}

func merge(dst map[uint16]Descriptor, src map[uint16]descriptorFile) error {
	for addr, f := range src {
		d, err := f.descriptor(addr)
		if err != nil {
			return err
		}
		dst[addr] = d
	}
	return nil
}

func wrapKey(key, ns string, err error) error {
	return fmt.Errorf("registermap: %s %s: %w", key, ns, err)
}

// Lookup returns the map selected by key. Unknown keys are an error;
// there is no fallback map.
func (r *Registry) Lookup(key string) (*Map, error) {
	m, ok := r.maps[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMap, key)
	}
	return m, nil
}

// Keys returns every selectable key, sorted.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// ------------------------------------------------------------
// Built-in maps
// ------------------------------------------------------------

var (
	builtinOnce sync.Once
	builtinReg  *Registry
	builtinErr  error
)

// Builtin returns the registry of maps compiled into the binary.
func Builtin() (*Registry, error) {
	builtinOnce.Do(func() {
		builtinReg, builtinErr = LoadFS(builtinMaps, "maps")
	})
	return builtinReg, builtinErr
}

// Lookup resolves key against the built-in maps.
func Lookup(key string) (*Map, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	return r.Lookup(key)
}

// List returns every built-in map, sorted by key.
func List() ([]*Map, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	out := make([]*Map, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.maps[k])
	}
	return out, nil
}
