// Package fieldconfig loads the field catalog: per data type and node type
// field descriptors, structure templates, node properties and attribute
// mappings.
package fieldconfig

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/sync/singleflight"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

//go:embed default.yaml
var defaultCatalog []byte

// CommonSection holds the fields shared by every data type.
const CommonSection = "common"

// Catalog is an immutable field catalog. Merged type configurations are
// derived on first use and cached; callers must not modify them.
type Catalog struct {
	Structures map[string]model.StructureTemplate
	Properties map[string]model.Properties
	Mappings   map[string]string
	Views      map[string]model.TypeConfig

	editor  map[string]any
	labels  map[string]string
	derived map[string]map[string]*model.TypeConfig // data type -> view type

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*model.TypeConfig
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, "yaml")
}

// Load reads a catalog file on top of the built-in catalog. The format is
// picked from the file extension (.yaml, .yml, .json or .toml).
func Load(path string) (*Catalog, error) {
	parser, err := parserFor(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(&bytesProvider{b: defaultCatalog}, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return build(k)
}

// Parse decodes a standalone catalog document.
func Parse(b []byte, format string) (*Catalog, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(&bytesProvider{b: b}, parser); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return build(k)
}

func parserFor(format string) (koanf.Parser, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Parser(), nil
	case "json":
		return json.Parser(), nil
	case "toml":
		return toml.Parser(), nil
	}
	return nil, fmt.Errorf("unsupported catalog format %q", format)
}

func build(k *koanf.Koanf) (*Catalog, error) {
	c := &Catalog{
		labels:  make(map[string]string),
		derived: make(map[string]map[string]*model.TypeConfig),
		cache:   make(map[string]*model.TypeConfig),
	}

	if err := unmarshal(k, "structures", &c.Structures); err != nil {
		return nil, fmt.Errorf("failed to decode structures: %w", err)
	}
	for name, s := range c.Structures {
		s.Name = name
		c.Structures[name] = s
	}
	if err := unmarshal(k, "properties", &c.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	for name, p := range c.Properties {
		if p.Type == "" {
			p.Type = name
			c.Properties[name] = p
		}
	}
	if err := unmarshal(k, "mappings", &c.Mappings); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	if err := unmarshal(k, "views", &c.Views); err != nil {
		return nil, fmt.Errorf("failed to decode views: %w", err)
	}
	for name, tc := range c.Views {
		fillIDs(&tc)
		c.Views[name] = tc
	}

	editor, ok := k.Get("editor").(map[string]any)
	if !ok {
		return nil, fmt.Errorf("catalog has no editor section")
	}
	c.editor = editor

	// Decode every section once so a malformed catalog fails at load time.
	for _, name := range append([]string{CommonSection}, c.DataTypes()...) {
		for nodeType, raw := range section(editor, name) {
			m, ok := raw.(map[string]any)
			if !ok {
				if label, isLabel := raw.(string); isLabel && nodeType == "label" {
					c.labels[name] = label
				}
				continue
			}
			if _, err := decodeTypeConfig(m); err != nil {
				return nil, fmt.Errorf("editor.%s.%s: %w", name, nodeType, err)
			}
		}
	}

	if err := c.deriveViews(); err != nil {
		return nil, err
	}
	return c, nil
}

// DataTypes returns the configured data types in ascending order.
func (c *Catalog) DataTypes() []string {
	var out []string
	for name := range c.editor {
		if name != CommonSection {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// DataTypeLabel returns the display label of a data type.
func (c *Catalog) DataTypeLabel(dataType string) string {
	if l, ok := c.labels[dataType]; ok {
		return l
	}
	return dataType
}

// Structure returns the named structure template.
func (c *Catalog) Structure(name string) (model.StructureTemplate, error) {
	s, ok := c.Structures[name]
	if !ok {
		return model.StructureTemplate{}, fmt.Errorf("%w: %s", model.ErrUnknownStructure, name)
	}
	return s, nil
}

// ViewTypes returns the enabled plot types declared in properties.
func (c *Catalog) ViewTypes() []string {
	var out []string
	for name, p := range c.Properties {
		if p.Type == model.TypeView && !p.Disabled && model.IsViewType(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Title returns the display title of a node type.
func (c *Catalog) Title(nodeType string) string {
	if p, ok := c.Properties[nodeType]; ok && p.Title != "" {
		return p.Title
	}
	return nodeType
}

// Mapping returns the backend attribute configured under key, or key itself.
func (c *Catalog) Mapping(key string) string {
	if v, ok := c.Mappings[key]; ok {
		return v
	}
	return key
}

// TypeConfig returns the configuration of nodeType merged from the common
// section and each data type in order, later data types overriding earlier
// ones field by field. The result is shared and must be treated as read-only.
func (c *Catalog) TypeConfig(nodeType string, dataTypes []string) (*model.TypeConfig, error) {
	key := nodeType + "\x00" + strings.Join(dataTypes, "\x00")

	c.mu.RLock()
	tc, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return tc, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Double-check after winning the race.
		c.mu.RLock()
		cached, ok := c.cache[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		tc, err := c.merge(nodeType, dataTypes)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = tc
		c.mu.Unlock()
		return tc, nil
	})
	if err != nil {
		return nil, err
	}
	tc, ok = v.(*model.TypeConfig)
	if !ok {
		return nil, fmt.Errorf("fieldconfig: unexpected singleflight result type %T", v)
	}
	return tc, nil
}

func (c *Catalog) merge(nodeType string, dataTypes []string) (*model.TypeConfig, error) {
	merged := maps.Copy(section(c.editor, CommonSection))
	if merged == nil {
		merged = make(map[string]any)
	}
	for _, dt := range dataTypes {
		if sec := section(c.editor, dt); sec != nil {
			maps.Merge(maps.Copy(sec), merged)
		}
	}

	tc := &model.TypeConfig{Fields: make(map[string]*model.FieldDescriptor)}
	if raw, ok := merged[nodeType].(map[string]any); ok {
		var err error
		if tc, err = decodeTypeConfig(raw); err != nil {
			return nil, fmt.Errorf("merge %s for %v: %w", nodeType, dataTypes, err)
		}
	}

	for _, dt := range dataTypes {
		d := c.derived[dt][nodeType]
		if d == nil {
			continue
		}
		for id, f := range d.Fields {
			if _, ok := tc.Fields[id]; !ok {
				tc.Fields[id] = f
			}
		}
		tc.Required = append(tc.Required, d.Required...)
	}
	return tc, nil
}

func decodeTypeConfig(raw map[string]any) (*model.TypeConfig, error) {
	k := koanf.New(".")
	if err := k.Load(&mapProvider{m: raw}, nil); err != nil {
		return nil, err
	}
	tc := &model.TypeConfig{}
	if err := unmarshal(k, "", tc); err != nil {
		return nil, err
	}
	fillIDs(tc)
	return tc, nil
}

func fillIDs(tc *model.TypeConfig) {
	if tc.Fields == nil {
		tc.Fields = make(map[string]*model.FieldDescriptor)
	}
	for id, f := range tc.Fields {
		if f == nil {
			delete(tc.Fields, id)
			continue
		}
		if f.ID == "" {
			f.ID = id
		}
	}
}

func section(editor map[string]any, name string) map[string]any {
	m, _ := editor[name].(map[string]any)
	return m
}

// mapProvider serves an already-parsed map to koanf.
type mapProvider struct {
	m map[string]any
}

func (p *mapProvider) Read() (map[string]any, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

// bytesProvider serves an in-memory document to a koanf parser.
type bytesProvider struct {
	b []byte
}

func (p *bytesProvider) ReadBytes() ([]byte, error) {
	return p.b, nil
}

func (p *bytesProvider) Read() (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}
