// Package fixture reads analyzer fixtures: JavaScript files whose first
// line is a header of the form
//
//	// @expected name1 name2 ...
//
// and compares the expected names with computed ones as sets.
package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/go-cmp/cmp"
)

// ErrInvalid is returned for files that do not start with the header.
var ErrInvalid = errors.New("invalid fixture")

// DefaultPattern selects fixture files below a directory.
const DefaultPattern = "**/*.test.{js,cjs,ts,cts}"

const header = "// @expected "

var headerLine = regexp.MustCompile(`^// @expected( (.*)|)$`)

// Fixture is a parsed fixture file.
type Fixture struct {
	Path string
	// Expected is sorted and free of duplicates.
	Expected []string
}

// Parse reads the header of a fixture's contents.
func Parse(path string, src []byte) (*Fixture, error) {
	text := string(src)
	// A header with no names is written "// @expected" plus a space, but
	// editors strip trailing whitespace, so the bare form is accepted too.
	if !strings.HasPrefix(text, header) && !strings.HasPrefix(text, strings.TrimSpace(header)+"\n") {
		return nil, fmt.Errorf("%w: %s does not start with %q", ErrInvalid, path, strings.TrimSpace(header))
	}

	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSuffix(first, "\r")

	var expected []string
	if m := headerLine.FindStringSubmatch(first); m != nil {
		expected = strings.Fields(m[2])
	}
	return &Fixture{Path: path, Expected: normalize(expected)}, nil
}

// Load reads and parses the fixture at path.
func Load(path string) (*Fixture, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(path, src)
}

// Discover lists the fixtures under dir matching pattern, sorted. An empty
// pattern uses DefaultPattern.
func Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s in %s: %w", pattern, dir, err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	slices.Sort(paths)
	return paths, nil
}

// Mismatch reports a fixture whose computed names differ from the header.
type Mismatch struct {
	Path     string
	Expected []string
	Actual   []string
	// Diff is a go-cmp diff, "-" for expected and "+" for actual.
	Diff string
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("%s: export names differ (-expected +actual):\n%s", m.Path, m.Diff)
}

// Check compares actual with the expected names, ignoring order and
// duplicates. It returns a *Mismatch when they differ.
func (f *Fixture) Check(actual []string) error {
	got := normalize(actual)
	diff := cmp.Diff(f.Expected, got)
	if diff == "" {
		return nil
	}
	return &Mismatch{Path: f.Path, Expected: f.Expected, Actual: got, Diff: diff}
}

func normalize(names []string) []string {
	out := slices.Clone(names)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
