// Package backend holds the query-side collaborators of the engine: the
// structured query description handed to renderers and the gene annotation
// index used by post-processing.
package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Gene is one gene annotation record.
type Gene struct {
	Name  string `koanf:"name" json:"name"`
	Chrom string `koanf:"chrom" json:"chrom"`
	Start int64  `koanf:"start" json:"start"`
	End   int64  `koanf:"end" json:"end"`
}

// GeneSource resolves gene names to their coordinates.
type GeneSource interface {
	GeneInfo(ctx context.Context, names []string) ([]Gene, error)
}

// GeneIndex is an in-memory GeneSource.
type GeneIndex struct {
	byName map[string]Gene
}

// NewGeneIndex indexes genes by upper-cased name.
func NewGeneIndex(genes []Gene) *GeneIndex {
	idx := &GeneIndex{byName: make(map[string]Gene, len(genes))}
	for _, g := range genes {
		idx.byName[strings.ToUpper(g.Name)] = g
	}
	return idx
}

// LoadGeneIndex reads a YAML or JSON document with a top-level "genes" list.
func LoadGeneIndex(path string) (*GeneIndex, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("gene index %s: unsupported format", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load gene index %s: %w", path, err)
	}
	var genes []Gene
	if err := k.Unmarshal("genes", &genes); err != nil {
		return nil, fmt.Errorf("failed to decode gene index %s: %w", path, err)
	}
	return NewGeneIndex(genes), nil
}

// GeneInfo returns the annotations of the known names, in request order.
// Unknown names are skipped.
func (idx *GeneIndex) GeneInfo(ctx context.Context, names []string) ([]Gene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Gene, 0, len(names))
	for _, name := range names {
		if g, ok := idx.byName[strings.ToUpper(strings.TrimSpace(name))]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// Len returns the number of indexed genes.
func (idx *GeneIndex) Len() int {
	return len(idx.byName)
}
