package registry

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// fileEntry is the on-disk form of an ImportInfo.
type fileEntry struct {
	Module    string              `json:"module"`
	Strategy  string              `json:"strategy"`
	Import    string              `json:"import,omitempty"`
	Link      string              `json:"link,omitempty"`
	NeedsInit bool                `json:"needs_init"`
	Functions map[string]fileFunc `json:"functions,omitempty"`
}

type fileFunc struct {
	NeedsAllocator bool `json:"needs_allocator"`
	ReturnsError   bool `json:"returns_error"`
}

type fileDoc struct {
	Modules []fileEntry `json:"modules"`
}

// LoadFile registers the entries of a registry file. The format follows the
// extension: .cue, .yaml/.yml or .json. Every file is validated against the
// embedded #Registry schema before anything is registered.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading registry file: %w", err)
	}
	if err := r.Load(data, filepath.Ext(path), path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load registers entries from data in the format named by ext.
func (r *Registry) Load(data []byte, ext, filename string) error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("registry schema: %w", err)
	}

	var v cue.Value
	switch ext {
	case ".cue", ".json":
		v = cctx.CompileBytes(data, cue.Filename(filename))
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing yaml: %w", err)
		}
		v = cctx.Encode(doc)
	default:
		return fmt.Errorf("unsupported registry file extension %q", ext)
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("parsing registry: %w", err)
	}

	v = schema.LookupPath(cue.ParsePath("#Registry")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validating registry: %w", err)
	}
	var doc fileDoc
	if err := v.Decode(&doc); err != nil {
		return fmt.Errorf("decoding registry: %w", err)
	}

	infos := make([]ImportInfo, 0, len(doc.Modules))
	for _, e := range doc.Modules {
		strategy, err := ParseStrategy(e.Strategy)
		if err != nil {
			return fmt.Errorf("module %s: %w", e.Module, err)
		}
		info := ImportInfo{
			Module:    e.Module,
			Strategy:  strategy,
			Import:    e.Import,
			Link:      e.Link,
			NeedsInit: e.NeedsInit,
		}
		if len(e.Functions) > 0 {
			info.Functions = make(map[string]FuncMeta, len(e.Functions))
			for name, f := range e.Functions {
				info.Functions[name] = FuncMeta{NeedsAllocator: f.NeedsAllocator, ReturnsError: f.ReturnsError}
			}
		}
		infos = append(infos, info)
	}
	for _, info := range infos {
		if err := r.Register(info); err != nil {
			return err
		}
	}
	return nil
}
