package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// packageJSON holds the package.json fields that affect require().
type packageJSON struct {
	dir  string
	main string
	// exports is nil when the field is absent. Condition order matters,
	// so objects are kept ordered.
	exports json.RawMessage
}

func readPackageJSON(dir, file string) (*packageJSON, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Main    json.RawMessage `json:"main"`
		Exports json.RawMessage `json:"exports"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", file, err)
	}

	pkg := &packageJSON{dir: dir}
	var main string
	if len(raw.Main) > 0 && json.Unmarshal(raw.Main, &main) == nil {
		pkg.main = main
	}
	if len(raw.Exports) > 0 && string(raw.Exports) != "null" {
		pkg.exports = raw.Exports
	}
	return pkg, nil
}

// exportsValue is a decoded exports value: a string target, an ordered
// object, an array of alternatives, or null.
type exportsValue struct {
	str    *string
	object *orderedmap.OrderedMap[string, json.RawMessage]
	array  []json.RawMessage
}

func decodeExports(raw json.RawMessage) (exportsValue, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "null":
		return exportsValue{}, nil
	case strings.HasPrefix(trimmed, "{"):
		om := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(raw, om); err != nil {
			return exportsValue{}, err
		}
		return exportsValue{object: om}, nil
	case strings.HasPrefix(trimmed, "["):
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return exportsValue{}, err
		}
		return exportsValue{array: arr}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return exportsValue{}, err
	}
	return exportsValue{str: &s}, nil
}

// isSubpathMap reports whether an exports object maps subpaths ("./x")
// rather than conditions.
func isSubpathMap(om *orderedmap.OrderedMap[string, json.RawMessage]) bool {
	if pair := om.Oldest(); pair != nil {
		return strings.HasPrefix(pair.Key, ".")
	}
	return false
}
