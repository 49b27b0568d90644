package codegen

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/chazu/pyaot/pyast"
)

// TestGolden lowers the tree in each testdata archive and checks that every
// line of its "want" file appears in the output. A "diagnostics" file lists
// message fragments that must be reported.
func TestGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no golden archives")
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txtar")
		t.Run(name, func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			parts := map[string]string{}
			for _, f := range ar.Files {
				parts[f.Name] = string(f.Data)
			}
			input, ok := parts["input.json"]
			if !ok {
				t.Fatal("archive has no input.json")
			}
			m, err := pyast.Decode([]byte(input), "main")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			res, err := Generate(m, Options{Entry: true})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			for _, want := range lines(parts["want"]) {
				if !strings.Contains(res.Source, want) {
					t.Errorf("output lacks %q\n--- output ---\n%s", want, res.Source)
				}
			}
			for _, want := range lines(parts["diagnostics"]) {
				found := false
				for _, d := range res.Diagnostics {
					found = found || strings.Contains(d.Message, want)
				}
				if !found {
					t.Errorf("no diagnostic mentions %q: %v", want, res.Diagnostics)
				}
			}
		})
	}
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
