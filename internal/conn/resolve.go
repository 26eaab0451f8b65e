package conn

import (
	"os"
	"strings"
)

// resolvePath maps a request path to a filesystem path under root,
// stripping the location's prefix and trying each configured index file
// when the result is a directory. Ported from
// original_source/src/core/Connection.cpp's resolvePathForLocation.
func resolvePath(root, locationPath, reqPath string, index []string) (fsPath string, isDir bool) {
	rel := reqPath
	if locationPath != "" && locationPath != "/" && strings.HasPrefix(rel, locationPath) {
		rel = rel[len(locationPath):]
		if rel == "" {
			rel = "/"
		}
	}

	var path string
	switch {
	case strings.HasSuffix(root, "/") && strings.HasPrefix(rel, "/"):
		path = root + rel[1:]
	case !strings.HasSuffix(root, "/") && !strings.HasPrefix(rel, "/") && rel != "":
		path = root + "/" + rel
	default:
		path = root + rel
	}

	st, err := os.Stat(path)
	pathIsDir := err == nil && st.IsDir()
	if pathIsDir && !strings.HasSuffix(path, "/") {
		path += "/"
	}

	if pathIsDir || strings.HasSuffix(path, "/") {
		for _, idx := range index {
			cand := path + idx
			if cst, cerr := os.Stat(cand); cerr == nil && cst.Mode().IsRegular() {
				return cand, false
			}
		}
		return path, true
	}

	return path, false
}
