package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("noderpc.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name        string    // dependency name
	LocalPath   string    // local filesystem path
	IncludeDirs []string  // absolute header directories
	Manifest    *Manifest // the dependency's own manifest (may be nil)
	Source      Dependency
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents, siblings by name).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return order, nil
}

// IncludeDirs returns the header directories of deps, in order.
func IncludeDirs(deps []ResolvedDep) []string {
	var dirs []string
	for _, d := range deps {
		dirs = append(dirs, d.IncludeDirs...)
	}
	return dirs
}

// resolveAll resolves a set of dependencies recursively. Paths in deps are
// relative to owner's directory.
func (r *Resolver) resolveAll(owner *Manifest, deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}

		rd, err := r.resolveOne(owner, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}

		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		order = append(order, *rd)
	}

	return order, nil
}

// resolveOne resolves a single dependency.
func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var localPath string

	switch {
	case dep.Path != "":
		localPath = dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(owner.Dir, localPath)
		}

		var err error
		localPath, err = filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}

		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}

	case dep.Git != "":
		localPath = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.syncGit(name, dep, localPath); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A dependency need not be a noderpc project.
	depManifest, _ := Load(localPath)

	return &ResolvedDep{
		Name:        name,
		LocalPath:   localPath,
		IncludeDirs: includeDirs(localPath, dep.Include),
		Manifest:    depManifest,
		Source:      dep,
	}, nil
}

// syncGit clones or updates a git dependency and checks out its tag.
func (r *Resolver) syncGit(name string, dep Dependency, depDir string) error {
	if _, err := os.Stat(depDir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, depDir); err != nil {
			return err
		}
	} else {
		locked := r.lock.FindLockedDep(name)
		if locked == nil || locked.Tag != dep.Tag {
			log.Infof("fetching %s", name)
			if err := gitFetch(depDir); err != nil {
				return err
			}
		}
	}

	if dep.Tag == "" {
		return nil
	}
	clean, err := gitIsClean(depDir)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("dependency %q has local changes in %s; refusing to check out %s", name, depDir, dep.Tag)
	}
	return gitCheckout(depDir, dep.Tag)
}

func includeDirs(root string, include []string) []string {
	if len(include) == 0 {
		if info, err := os.Stat(filepath.Join(root, "src")); err == nil && info.IsDir() {
			return []string{filepath.Join(root, "src")}
		}
		return []string{root}
	}
	dirs := make([]string, len(include))
	for i, inc := range include {
		dirs[i] = filepath.Join(root, inc)
	}
	return dirs
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}

	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}

		_, direct := r.manifest.Dependencies[rd.Name]
		switch {
		case rd.Source.Git != "":
			ld.Git = rd.Source.Git
			ld.Tag = rd.Source.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		case direct:
			ld.Path = rd.Source.Path
		default:
			// transitive paths are relative to another manifest
			ld.Path = rd.LocalPath
		}

		lf.Deps = append(lf.Deps, ld)
	}

	lockDir := filepath.Dir(r.manifest.LockFilePath())
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return err
	}

	return WriteLock(r.manifest.LockFilePath(), lf)
}
