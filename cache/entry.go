package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/pyast"
)

// formatVersion changes whenever entry or the generated code changes shape
// in a way old entries must not be served for.
const formatVersion = 1

// entry is the stored form of a codegen.Result.
type entry struct {
	Version     int          `cbor:"1,keyasint"`
	Source      string       `cbor:"2,keyasint"`
	Diagnostics []diagnostic `cbor:"3,keyasint,omitempty"`
	Links       []string     `cbor:"4,keyasint,omitempty"`
	Modules     []string     `cbor:"5,keyasint,omitempty"`
}

type diagnostic struct {
	Severity int    `cbor:"1,keyasint"`
	Module   string `cbor:"2,keyasint"`
	Line     int    `cbor:"3,keyasint"`
	Column   int    `cbor:"4,keyasint"`
	Message  string `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

func marshalResult(res *codegen.Result) ([]byte, error) {
	e := entry{
		Version: formatVersion,
		Source:  res.Source,
		Links:   res.LinkLibraries,
		Modules: res.Modules,
	}
	for _, d := range res.Diagnostics {
		e.Diagnostics = append(e.Diagnostics, diagnostic{
			Severity: int(d.Severity),
			Module:   d.Module,
			Line:     d.Pos.Line,
			Column:   d.Pos.Column,
			Message:  d.Message,
		})
	}
	return encMode.Marshal(&e)
}

// unmarshalResult decodes an entry. An entry of another format version
// decodes to ErrStale.
func unmarshalResult(data []byte) (*codegen.Result, error) {
	var e entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: unmarshal entry: %w", err)
	}
	if e.Version != formatVersion {
		return nil, fmt.Errorf("%w: format %d, want %d", ErrStale, e.Version, formatVersion)
	}
	res := &codegen.Result{
		Source:        e.Source,
		LinkLibraries: e.Links,
		Modules:       e.Modules,
	}
	for _, d := range e.Diagnostics {
		res.Diagnostics = append(res.Diagnostics, codegen.Diagnostic{
			Severity: codegen.Severity(d.Severity),
			Module:   d.Module,
			Pos:      pyast.Pos{Line: d.Line, Column: d.Column},
			Message:  d.Message,
		})
	}
	return res, nil
}
