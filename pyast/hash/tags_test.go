package hash

import (
	"testing"

	"github.com/chazu/pyaot/pyast"
)

func TestTagsDistinct(t *testing.T) {
	owner := make(map[byte]int, len(allTags))
	for i, tag := range allTags {
		if j, ok := owner[tag]; ok {
			t.Errorf("allTags[%d] and allTags[%d] share byte 0x%02X", j, i, tag)
		}
		owner[tag] = i
	}
}

// Each node family owns a byte range so that a new node kind can be added
// to its family without renumbering.
func TestTagFamilies(t *testing.T) {
	families := []struct {
		name   string
		lo, hi byte
		tags   []byte
	}{
		{"constant", 0x02, 0x0F, []byte{TagNone, TagBool, TagInt, TagFloat, TagString, TagBytes}},
		{"expression", 0x10, 0x3F, []byte{TagName, TagCall, TagSubscript, TagLambda, TagAwait, TagStarred}},
		{"statement", 0x40, 0x5F, []byte{TagModule, TagFunctionDef, TagTry, TagMatch, TagArguments}},
		{"pattern", 0x60, 0x6F, []byte{TagMatchValue, TagMatchSingleton, TagMatchAs, TagMatchOr}},
	}
	for _, f := range families {
		for _, tag := range f.tags {
			if tag < f.lo || tag > f.hi {
				t.Errorf("%s tag 0x%02X outside 0x%02X-0x%02X", f.name, tag, f.lo, f.hi)
			}
		}
	}
	for _, tag := range allTags {
		if tag >= 0xFE {
			t.Errorf("tag 0x%02X uses a reserved byte", tag)
		}
	}
}

func TestSimpleStatementTags(t *testing.T) {
	tests := []struct {
		stmt pyast.Stmt
		tag  byte
	}{
		{&pyast.Pass{}, TagPass},
		{&pyast.Break{}, TagBreak},
	}
	for _, tt := range tests {
		data := Serialize(tt.stmt)
		if len(data) != 2 || data[0] != HashVersion || data[1] != tt.tag {
			t.Errorf("Serialize(%T) = % X, want %02X %02X", tt.stmt, data, HashVersion, tt.tag)
		}
	}
}
