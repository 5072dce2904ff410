package data

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/script"
)

var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrUnknownEffect    = errors.New("unknown effect")
	ErrUnknownCurve     = errors.New("unknown curve")
	ErrDuplicateEffect  = errors.New("duplicate effect")
	ErrNoScriptEngine   = errors.New("script referenced without script engine")
)

// Catalog is the immutable set of effect definitions, curve tables and
// attribute set schemas loaded from one YAML document.
type Catalog struct {
	defs        map[string]*effect.Definition
	names       []string
	curves      map[string]*effect.CurveTable
	registry    *attribute.Registry
	fingerprint string
}

// Options controls loading.
type Options struct {
	// Scripts receives the catalog's script files and resolves script
	// magnitudes and requirements. Created on demand when nil.
	Scripts *script.Engine
	// BaseDir resolves relative script paths.
	BaseDir string
}

// LoadCatalog reads and parses the catalog at path. Script paths are
// resolved relative to the catalog file.
func LoadCatalog(path string, opts Options) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	}
	c, err := ParseCatalog(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	slog.Info("loaded effect catalog",
		"path", path,
		"effects", len(c.names),
		"curve_tables", len(c.curves),
		"attribute_sets", len(c.registry.IDs()),
		"fingerprint", c.fingerprint[:16])
	return c, nil
}

// ParseCatalog builds a catalog from YAML. Every definition is validated;
// all content errors are reported together.
func ParseCatalog(raw []byte, opts Options) (*Catalog, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	registry, err := attribute.NewRegistry(doc.AttributeSets...)
	if err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(raw)
	c := &Catalog{
		defs:        make(map[string]*effect.Definition, len(doc.Effects)),
		curves:      make(map[string]*effect.CurveTable, len(doc.CurveTables)),
		registry:    registry,
		fingerprint: hex.EncodeToString(sum[:]),
	}

	for _, ct := range doc.CurveTables {
		table := effect.NewCurveTable(ct.Name)
		for row, keys := range ct.Rows {
			table.AddRow(row, keys...)
		}
		c.curves[ct.Name] = table
	}

	if len(doc.Scripts) > 0 && opts.Scripts == nil {
		opts.Scripts = script.NewEngine()
	}
	for _, p := range doc.Scripts {
		if !filepath.IsAbs(p) {
			p = filepath.Join(opts.BaseDir, p)
		}
		if err := opts.Scripts.LoadFile(p); err != nil {
			return nil, err
		}
	}

	for _, e := range doc.Effects {
		if _, ok := c.defs[e.Name]; ok {
			return nil, fmt.Errorf("%q: %w", e.Name, ErrDuplicateEffect)
		}
		c.defs[e.Name] = &effect.Definition{Name: e.Name}
		c.names = append(c.names, e.Name)
	}

	b := builder{catalog: c, scripts: opts.Scripts}
	var errs []error
	for _, e := range doc.Effects {
		def := c.defs[e.Name]
		if err := b.build(def, e); err != nil {
			errs = append(errs, fmt.Errorf("effect %q: %w", e.Name, err))
			continue
		}
		if err := def.Validate(registry.Resolve); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Definition returns the definition named name.
func (c *Catalog) Definition(name string) (*effect.Definition, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// MustDefinition returns the definition named name or panics. For host
// wiring and tests only.
func (c *Catalog) MustDefinition(name string) *effect.Definition {
	def, ok := c.defs[name]
	if !ok {
		panic(fmt.Sprintf("data: %q: %v", name, ErrUnknownEffect))
	}
	return def
}

// Names returns effect names in document order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// CurveTable returns the curve table named name.
func (c *Catalog) CurveTable(name string) (*effect.CurveTable, bool) {
	t, ok := c.curves[name]
	return t, ok
}

// Registry returns the attribute set schemas of the catalog.
func (c *Catalog) Registry() *attribute.Registry {
	return c.registry
}

// Fingerprint returns the hex BLAKE2b-256 digest of the catalog source.
// Peers compare fingerprints before exchanging effects by name.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}
