package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pyaot.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Package   string    // top-level Python package it provides
	Manifest  *Manifest // the dependency's own manifest (may be nil)

	dep Dependency
}

// SourceRoots returns the directories the dependency's modules are loaded
// from: its configured source directories, or its root without a manifest.
func (d ResolvedDep) SourceRoots() []string {
	if d.Manifest != nil {
		return d.Manifest.SourceDirPaths()
	}
	return []string{d.LocalPath}
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	packages map[string]string // package -> dependency providing it
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock
	r.packages = make(map[string]string)

	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest.Dir, r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves a set of dependencies declared by the project in
// base, recursively and in name order. Returns dependencies in topological
// order (deps before dependents).
func (r *Resolver) resolveAll(base string, deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, err := r.resolveOne(base, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if prev, dup := r.packages[rd.Package]; dup {
			return nil, fmt.Errorf("dependencies %q and %q both provide package %q", prev, name, rd.Package)
		}
		r.packages[rd.Package] = name
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.LocalPath, rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolvePackage determines the package a dependency provides:
//  1. Consumer override (dep.Package from TOML)
//  2. Producer manifest (depManifest.Project.Package)
//  3. The dependency name as a module name
func resolvePackage(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var pkg string
	switch {
	case dep.Package != "":
		pkg = dep.Package
	case depManifest != nil && depManifest.Project.Package != "":
		pkg = depManifest.Project.Package
	default:
		pkg = ToModuleName(name)
	}

	if !IsModuleName(pkg) {
		return "", fmt.Errorf("dependency %q provides %q, which is not a valid module name; add package = \"...\" in [dependencies]", name, pkg)
	}
	if IsReservedPackage(pkg) {
		return "", fmt.Errorf("dependency %q provides %q, which would shadow a runtime module", name, pkg)
	}
	return pkg, nil
}

// loadOptional loads the manifest in dir, if there is one.
func loadOptional(dir string) (*Manifest, error) {
	m, err := Load(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

func (r *Resolver) resolveOne(base, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		dir = dep.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, dir, err)
		}
	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(name, dep, dir); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	depManifest, err := loadOptional(dir)
	if err != nil {
		return nil, err
	}
	pkg, err := resolvePackage(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	return &ResolvedDep{Name: name, LocalPath: dir, Package: pkg, Manifest: depManifest, dep: dep}, nil
}

// fetch clones a git dependency into dir, or updates it when the locked
// tag differs from the requested one, and checks out the requested tag.
func (r *Resolver) fetch(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(dir); err != nil {
			return err
		}
	}
	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}
		dep := rd.dep
		switch {
		case dep.Git != "":
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		case dep.Path != "":
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
