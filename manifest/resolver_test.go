package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePackage(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		want        string
		wantErr     bool
	}{
		{
			name:        "consumer override wins",
			depName:     "vectors",
			dep:         Dependency{Path: "../v", Package: "vec"},
			depManifest: &Manifest{Project: Project{Package: "vectors"}},
			want:        "vec",
		},
		{
			name:        "producer package when no consumer override",
			depName:     "vectors",
			dep:         Dependency{Path: "../v"},
			depManifest: &Manifest{Project: Project{Package: "vectorlib"}},
			want:        "vectorlib",
		},
		{
			name:    "module name fallback when no manifest",
			depName: "my-lib",
			dep:     Dependency{Path: "../my-lib"},
			want:    "my_lib",
		},
		{
			name:        "fallback when manifest has no package",
			depName:     "My-Lib",
			dep:         Dependency{Path: "../my-lib"},
			depManifest: &Manifest{Project: Project{Name: "my-lib"}},
			want:        "my_lib",
		},
		{
			name:    "runtime module rejected",
			depName: "mathx",
			dep:     Dependency{Path: "../m", Package: "math"},
			wantErr: true,
		},
		{
			name:    "runtime module via fallback",
			depName: "json",
			dep:     Dependency{Path: "../json"},
			wantErr: true,
		},
		{
			name:    "invalid module name",
			depName: "2d",
			dep:     Dependency{Path: "../2d"},
			wantErr: true,
		},
		{
			name:    "dotted package under a free root",
			depName: "vendored",
			dep:     Dependency{Path: "../v", Package: "vendor.json"},
			want:    "vendor.json",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pkg, err := resolvePackage(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got package %q", pkg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pkg != tc.want {
				t.Errorf("package = %q, want %q", pkg, tc.want)
			}
		})
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	geo := filepath.Join(root, "geo")
	units := filepath.Join(root, "units")
	for _, d := range []string{app, geo, units} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
geo = { path = "../geo" }
`)
	// geo depends on units relative to its own directory
	writeManifest(t, geo, `
[project]
name = "geo"
package = "geometry"

[source]
dirs = ["py"]

[dependencies]
units = { path = "../units" }
`)

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("got %d deps, want 2", len(deps))
	}
	if deps[0].Name != "units" || deps[1].Name != "geo" {
		t.Errorf("order = %s, %s; want units, geo", deps[0].Name, deps[1].Name)
	}
	if deps[0].Manifest != nil {
		t.Errorf("units has no manifest, got %v", deps[0].Manifest)
	}
	if got := deps[0].SourceRoots(); len(got) != 1 || got[0] != units {
		t.Errorf("units roots = %v, want [%s]", got, units)
	}
	if deps[1].Package != "geometry" {
		t.Errorf("geo package = %q, want geometry", deps[1].Package)
	}
	if got := deps[1].SourceRoots(); len(got) != 1 || got[0] != filepath.Join(geo, "py") {
		t.Errorf("geo roots = %v", got)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil || lf == nil {
		t.Fatalf("ReadLock: %v, %v", lf, err)
	}
	if d := lf.FindLockedDep("geo"); d == nil || d.Path != "../geo" {
		t.Errorf("locked geo = %v", d)
	}
	if d := lf.FindLockedDep("units"); d == nil || d.Path != "../units" {
		t.Errorf("locked units = %v", d)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[dependencies]
ghost = { path = "does-not-exist" }
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Fatal("expected an error for a missing path dependency")
	}
}

func TestResolveDuplicatePackage(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, root, `
[dependencies]
a = { path = "a", package = "shared" }
b = { path = "b", package = "shared" }
`)
	m, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Fatal("expected an error for two dependencies providing one package")
	}
}
