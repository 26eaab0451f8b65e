package config

// Location is a path-prefix scoped set of directives nested inside a
// server block. Ported from original_source/Location.hpp.
type Location struct {
	Path            string
	Root            string
	Index           []string
	Autoindex       bool
	AllowedMethods  []string
	ErrorPages      map[int]string
	MaxRequestBody  int64
	RedirectCode    int
	RedirectTarget  string
	HasRedirect     bool
	CGI             bool
}

// Server is one "server { ... }" block: a listen address plus the
// locations nested inside it. Ported from original_source/Config.hpp's
// per-server fields.
type Server struct {
	Host           string
	Port           int
	ServerNames    []string
	Root           string
	Index          []string
	Autoindex      bool
	AllowedMethods []string
	ErrorPages     map[int]string
	MaxRequestBody int64
	Locations      []Location
}

// Tables is the fully validated, translated configuration: the global
// defaults plus every server block. This is what LoadFile/LoadString
// return, and what internal/conn matches requests against.
type Tables struct {
	Servers        []Server
	ErrorPages     map[int]string
	MaxRequestBody int64
}

// MatchLocation returns the location within s whose Path is the longest
// prefix of reqPath, respecting path-segment boundaries, or a location
// synthesized from s's own server-level fields if nothing matches.
// Ported from original_source/Server.cpp's matchLocation, which never
// reports "no match" - a server with no location blocks (or none
// covering reqPath) still answers out of its own root/index/autoindex/
// allow_methods/error_page.
func (s *Server) MatchLocation(reqPath string) *Location {
	var best *Location
	bestLen := -1
	for i := range s.Locations {
		loc := &s.Locations[i]
		if len(loc.Path) > bestLen && hasPrefix(reqPath, loc.Path) {
			best = loc
			bestLen = len(loc.Path)
		}
	}
	if best != nil {
		return best
	}
	return &Location{
		Path:           "/",
		Root:           s.Root,
		Index:          s.Index,
		Autoindex:      s.Autoindex,
		AllowedMethods: s.AllowedMethods,
		ErrorPages:     s.ErrorPages,
	}
}

// hasPrefix reports whether prefix is a path-segment-aligned prefix of
// path: an exact match, a prefix that itself ends in '/' (so "/" covers
// every path), or a prefix followed by '/'. Ported from
// original_source/Server.cpp's matchLocation boundary check (path.find
// (loc_path) == 0 plus the length/'/' test) - without it, a location
// "/api" would wrongly match a request for "/apixyz".
func hasPrefix(path, prefix string) bool {
	if len(prefix) > len(path) {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || prefix[len(prefix)-1] == '/' || path[len(prefix)] == '/'
}

// ErrorPageFor resolves the error_page body for the given status,
// checking location, then server, then global scope in that order -
// the three-tier inheritance from original_source/Config.cpp's
// global_error_pages_ handling.
func (t *Tables) ErrorPageFor(srv *Server, loc *Location, status int) (string, bool) {
	if loc != nil {
		if p, ok := loc.ErrorPages[status]; ok {
			return p, true
		}
	}
	if srv != nil {
		if p, ok := srv.ErrorPages[status]; ok {
			return p, true
		}
	}
	if p, ok := t.ErrorPages[status]; ok {
		return p, true
	}
	return "", false
}

// MaxRequestBodyFor resolves the max_request_body ceiling, checking
// location, then server, then global scope. A value of 0 means
// "unset at this scope, check the next one up"; if nothing in the
// chain sets it, 0 (no limit) is returned.
func (t *Tables) MaxRequestBodyFor(srv *Server, loc *Location) int64 {
	if loc != nil && loc.MaxRequestBody > 0 {
		return loc.MaxRequestBody
	}
	if srv != nil && srv.MaxRequestBody > 0 {
		return srv.MaxRequestBody
	}
	return t.MaxRequestBody
}
