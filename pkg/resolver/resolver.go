// Package resolver maps require() specifiers to files the way the
// CommonJS loader does.
package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is wrapped by errors for specifiers that resolve to nothing.
var ErrNotFound = errors.New("module not found")

// NotFoundError reports a specifier that could not be resolved.
type NotFoundError struct {
	Specifier string
	From      string
	Reason    string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("cannot find module %q from %s", e.Specifier, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Resolution is the outcome of resolving one specifier.
type Resolution struct {
	// Path is the absolute, symlink-free file path. Empty for core modules.
	Path string
	// Core is set for runtime core modules, which have no file.
	Core bool
}

// Config controls resolution.
type Config struct {
	// Extensions are tried in order when a path has no file of its own.
	Extensions []string
	// Conditions are matched against package.json exports conditions.
	Conditions []string
	// PackageCacheSize bounds the number of cached package.json files.
	PackageCacheSize int
	Logger           *slog.Logger
}

// DefaultConfig returns the extensions and conditions require() uses.
func DefaultConfig() Config {
	return Config{
		Extensions:       []string{".js", ".json", ".node"},
		Conditions:       []string{"require", "node", "default"},
		PackageCacheSize: 1024,
	}
}

// Resolver resolves specifiers. It is safe for concurrent use.
type Resolver struct {
	config   Config
	packages *lru.Cache[string, *packageJSON]
	logger   *slog.Logger
}

// New creates a resolver. Zero fields of config take their defaults.
func New(config Config) *Resolver {
	defaults := DefaultConfig()
	if len(config.Extensions) == 0 {
		config.Extensions = defaults.Extensions
	}
	if len(config.Conditions) == 0 {
		config.Conditions = defaults.Conditions
	}
	if config.PackageCacheSize <= 0 {
		config.PackageCacheSize = defaults.PackageCacheSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	packages, _ := lru.New[string, *packageJSON](config.PackageCacheSize)
	return &Resolver{config: config, packages: packages, logger: logger}
}

// Resolve resolves specifier as if required from a file in fromDir.
func (r *Resolver) Resolve(specifier, fromDir string) (Resolution, error) {
	if IsCore(specifier) {
		return Resolution{Core: true}, nil
	}

	notFound := func(reason string) error {
		return &NotFoundError{Specifier: specifier, From: fromDir, Reason: reason}
	}

	var found string
	var err error
	if IsPackagePath(specifier) && !filepath.IsAbs(specifier) {
		found, err = r.loadNodeModules(specifier, fromDir)
	} else {
		target := specifier
		if !filepath.IsAbs(target) {
			target = filepath.Join(fromDir, filepath.FromSlash(specifier))
		}
		found, err = r.loadRelative(target, strings.HasSuffix(specifier, "/"))
	}
	if err != nil {
		return Resolution{}, notFound(err.Error())
	}
	if found == "" {
		return Resolution{}, notFound("")
	}

	abs, err := filepath.Abs(found)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve %s: %w", found, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	r.logger.Debug("resolved module", "specifier", specifier, "from", fromDir, "path", abs)
	return Resolution{Path: abs}, nil
}

func (r *Resolver) loadRelative(target string, dirOnly bool) (string, error) {
	if !dirOnly {
		if f := r.loadAsFile(target); f != "" {
			return f, nil
		}
	}
	return r.loadAsDirectory(target)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (r *Resolver) loadAsFile(path string) string {
	if isFile(path) {
		return path
	}
	for _, ext := range r.config.Extensions {
		if isFile(path + ext) {
			return path + ext
		}
	}
	return ""
}

func (r *Resolver) loadIndex(dir string) string {
	for _, ext := range r.config.Extensions {
		index := filepath.Join(dir, "index"+ext)
		if isFile(index) {
			return index
		}
	}
	return ""
}

func (r *Resolver) loadAsDirectory(dir string) (string, error) {
	if !isDir(dir) {
		return "", nil
	}
	pkg, err := r.packageAt(dir)
	if err != nil {
		return "", err
	}
	if pkg != nil && pkg.main != "" {
		main := filepath.Join(dir, filepath.FromSlash(pkg.main))
		if f := r.loadAsFile(main); f != "" {
			return f, nil
		}
		if f := r.loadIndex(main); f != "" {
			return f, nil
		}
	}
	return r.loadIndex(dir), nil
}

// packageAt returns the package.json in dir, or nil if there is none.
func (r *Resolver) packageAt(dir string) (*packageJSON, error) {
	if pkg, ok := r.packages.Get(dir); ok {
		return pkg, nil
	}
	file := filepath.Join(dir, "package.json")
	if !isFile(file) {
		r.packages.Add(dir, nil)
		return nil, nil
	}
	pkg, err := readPackageJSON(dir, file)
	if err != nil {
		return nil, err
	}
	r.packages.Add(dir, pkg)
	return pkg, nil
}

// splitPackage splits "name/sub/path" or "@scope/name/sub" into the
// package name and the "./sub/path" subpath.
func splitPackage(specifier string) (name, subpath string) {
	parts := strings.SplitN(specifier, "/", 3)
	n := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		n = 2
	}
	name = strings.Join(parts[:min(n, len(parts))], "/")
	subpath = "." + strings.TrimPrefix(specifier, name)
	return name, subpath
}

// nodeModulesDirs lists the node_modules directories searched from dir,
// innermost first.
func nodeModulesDirs(dir string) []string {
	var dirs []string
	for {
		if filepath.Base(dir) != "node_modules" {
			dirs = append(dirs, filepath.Join(dir, "node_modules"))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dirs
		}
		dir = parent
	}
}

func (r *Resolver) loadNodeModules(specifier, fromDir string) (string, error) {
	name, subpath := splitPackage(specifier)
	for _, nm := range nodeModulesDirs(fromDir) {
		pkgDir := filepath.Join(nm, filepath.FromSlash(name))
		if !isDir(pkgDir) {
			continue
		}
		pkg, err := r.packageAt(pkgDir)
		if err != nil {
			return "", err
		}
		if pkg != nil && pkg.exports != nil {
			return r.resolveExports(pkg, subpath)
		}
		return r.loadRelative(filepath.Join(nm, filepath.FromSlash(specifier)), strings.HasSuffix(specifier, "/"))
	}
	return "", nil
}

// resolveExports resolves subpath through the package's exports field.
func (r *Resolver) resolveExports(pkg *packageJSON, subpath string) (string, error) {
	root, err := decodeExports(pkg.exports)
	if err != nil {
		return "", fmt.Errorf("invalid exports in %s: %w", pkg.dir, err)
	}

	if root.object == nil || !isSubpathMap(root.object) {
		if subpath != "." {
			return "", fmt.Errorf("subpath %s is not exported", subpath)
		}
		return r.resolveTarget(pkg, pkg.exports, "")
	}

	if target, ok := root.object.Get(subpath); ok {
		return r.resolveTarget(pkg, target, "")
	}

	// Pattern keys: the longest prefix before the * wins.
	bestKey, bestMatch := "", ""
	for pair := root.object.Oldest(); pair != nil; pair = pair.Next() {
		prefix, suffix, ok := strings.Cut(pair.Key, "*")
		if !ok || !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if len(subpath) < len(prefix)+len(suffix) {
			continue
		}
		if len(prefix) > len(strings.SplitN(bestKey, "*", 2)[0]) || bestKey == "" {
			bestKey = pair.Key
			bestMatch = subpath[len(prefix) : len(subpath)-len(suffix)]
		}
	}
	if bestKey == "" {
		return "", fmt.Errorf("subpath %s is not exported", subpath)
	}
	target, _ := root.object.Get(bestKey)
	return r.resolveTarget(pkg, target, bestMatch)
}

// resolveTarget resolves an exports target: a "./" relative string, a
// condition object or an array of fallbacks. Exported files are used as
// is, without extension probing.
func (r *Resolver) resolveTarget(pkg *packageJSON, raw json.RawMessage, match string) (string, error) {
	v, err := decodeExports(raw)
	if err != nil {
		return "", err
	}
	switch {
	case v.str != nil:
		target := *v.str
		if !strings.HasPrefix(target, "./") {
			return "", fmt.Errorf("invalid exports target %q", target)
		}
		target = strings.ReplaceAll(target, "*", match)
		path := filepath.Join(pkg.dir, filepath.FromSlash(target))
		if !isFile(path) {
			return "", fmt.Errorf("exports target %q does not exist", target)
		}
		return path, nil

	case v.object != nil:
		for pair := v.object.Oldest(); pair != nil; pair = pair.Next() {
			if !slices.Contains(r.config.Conditions, pair.Key) {
				continue
			}
			path, err := r.resolveTarget(pkg, pair.Value, match)
			if err == nil && path != "" {
				return path, nil
			}
			if err != nil {
				return "", err
			}
		}
		return "", errors.New("no matching exports condition")

	case v.array != nil:
		var lastErr error
		for _, alt := range v.array {
			path, err := r.resolveTarget(pkg, alt, match)
			if err == nil && path != "" {
				return path, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = errors.New("no valid exports target")
		}
		return "", lastErr
	}
	return "", errors.New("subpath is excluded by a null exports target")
}
