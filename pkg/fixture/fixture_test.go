package fixture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/graph"
	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries"
	"github.com/gnana997/cjsexports/pkg/resolver"
	"github.com/gnana997/cjsexports/pkg/util"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    []string
		wantErr bool
	}{
		{"names", "// @expected b a c\nexports.a = 1;", []string{"a", "b", "c"}, false},
		{"duplicates", "// @expected a  a\tb\n", []string{"a", "b"}, false},
		{"empty with space", "// @expected \nx;", []string{}, false},
		{"empty bare", "// @expected\nx;", []string{}, false},
		{"crlf", "// @expected a\r\nx;", []string{"a"}, false},
		{"no header", "exports.a = 1;", nil, true},
		{"header not first", "\n// @expected a", nil, true},
		{"wrong marker", "// @expect a\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse("f.test.js", []byte(tt.src))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Expected)
		})
	}
}

func TestCheck(t *testing.T) {
	f := &Fixture{Path: "x.test.js", Expected: []string{"a", "b"}}

	assert.NoError(t, f.Check([]string{"b", "a"}))
	assert.NoError(t, f.Check([]string{"a", "b", "a"}))

	err := f.Check([]string{"a", "c"})
	require.Error(t, err)
	var mismatch *Mismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"a", "c"}, mismatch.Actual)
	assert.Contains(t, mismatch.Diff, `"b"`)
	assert.Contains(t, mismatch.Diff, `"c"`)
	assert.Contains(t, err.Error(), "x.test.js")

	empty := &Fixture{Expected: []string{}}
	assert.NoError(t, empty.Check(nil))
}

func TestDiscover(t *testing.T) {
	paths, err := Discover("testdata", "")
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Contains(t, names, "shadowing-nested.test.js")
	assert.Contains(t, names, "reexport-cycle.test.js")
	assert.NotContains(t, names, "middle.js")
	assert.NotContains(t, names, "webpack.config.umd.cjs")
	assert.IsIncreasing(t, paths)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.test.js"))
	assert.Error(t, err)
}

// TestFixtures runs every fixture in testdata through the full pipeline.
func TestFixtures(t *testing.T) {
	logger := util.NewDiscardLogger()
	pm := parser.NewParserManager(logger)
	defer pm.Close()
	qm := queries.NewQueryManager(pm, logger)
	defer qm.Close()
	cache := util.NewSourceCache(nil)
	defer cache.Close()

	ex := extractor.NewExtractor(pm, qm, cache, extractor.Config{}, logger)
	res := resolver.New(resolver.Config{Logger: logger})

	paths, err := Discover("testdata", "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			f, err := Load(path)
			require.NoError(t, err)

			// A fresh graph per fixture, as each run would have.
			names, err := graph.New(ex, res, logger).Exports(path)
			require.NoError(t, err)
			assert.NoError(t, f.Check(names))
		})
	}
}
