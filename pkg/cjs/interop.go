package cjs

// IsESModule classifies a module by its __esModule assignments. A module
// with any __esModule entry acts as an ES module, unless it also exports
// default and some __esModule entry is not the literal true.
func IsESModule(exports map[string][]Value) bool {
	entries := exports["__esModule"]
	if len(entries) == 0 {
		return false
	}
	if _, ok := exports["default"]; !ok {
		return true
	}
	for _, e := range entries {
		if e.Computed || e.Value != true {
			return false
		}
	}
	return true
}

// InteropNames returns the export names in order, without default unless
// the module acts as an ES module.
func InteropNames(order []string, esModule bool) []string {
	names := make([]string, 0, len(order))
	for _, name := range order {
		if name == "default" && !esModule {
			continue
		}
		names = append(names, name)
	}
	return names
}
