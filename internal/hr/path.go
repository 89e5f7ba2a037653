package hr

import (
	"regexp"
	"strings"
)

var slashRun = regexp.MustCompile(`//+`)

// NormalizeBase returns base with exactly one leading slash and no trailing
// slash. An empty base becomes "/".
func NormalizeBase(base string) string {
	return "/" + strings.Trim(base, "/")
}

// BuildPath joins path onto the module base path.
//
// A path already under the base is returned unchanged. An absolute path is
// prefixed with the base; a relative one is joined with a slash. The first
// run of repeated slashes is collapsed.
func BuildPath(base, path string) string {
	nb := NormalizeBase(base)
	if nb != "/" && (path == nb || strings.HasPrefix(path, nb+"/")) {
		return path
	}

	var joined string
	if strings.HasPrefix(path, "/") {
		joined = nb + path
	} else {
		joined = nb + "/" + path
	}
	if loc := slashRun.FindStringIndex(joined); loc != nil {
		joined = joined[:loc[0]] + "/" + joined[loc[1]:]
	}
	return joined
}
