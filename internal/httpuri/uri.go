// Package httpuri parses and normalizes the request-target of an HTTP
// request line: scheme://authority/path?query#fragment, or the bare
// origin-form /path?query#fragment. Ported from
// original_source/src/http/Uri.cpp, the target's own URI class.
package httpuri

import (
	"strconv"
	"strings"
)

// URI holds the parsed components of a request-target.
type URI struct {
	Scheme   string
	Host     string
	Port     int // -1 if absent
	Path     string
	Query    string
	Fragment string
	valid    bool
}

// Parse parses s into a URI. It returns an invalid URI (Valid() == false)
// on any malformed input; callers should treat that as a 400 response.
func Parse(s string) URI {
	var u URI
	if s == "" {
		u.Port = -1
		return u
	}

	remaining := s
	u.Port = -1

	if idx := strings.Index(remaining, "://"); idx != -1 {
		u.Scheme = remaining[:idx]
		remaining = remaining[idx+3:]

		var authority string
		if slash := strings.IndexByte(remaining, '/'); slash != -1 {
			authority = remaining[:slash]
			remaining = remaining[slash:]
		} else {
			authority = remaining
			remaining = "/"
		}

		if colon := strings.LastIndexByte(authority, ':'); colon != -1 {
			portStr := authority[colon+1:]
			if portStr == "" {
				return URI{Port: -1}
			}
			port, err := strconv.Atoi(portStr)
			if err != nil || port < 1 || port > 65535 {
				return URI{Port: -1}
			}
			u.Host = authority[:colon]
			u.Port = port
		} else {
			u.Host = authority
		}
	}

	if idx := strings.IndexByte(remaining, '#'); idx != -1 {
		u.Fragment = remaining[idx+1:]
		remaining = remaining[:idx]
	}
	if idx := strings.IndexByte(remaining, '?'); idx != -1 {
		u.Query = remaining[idx+1:]
		remaining = remaining[:idx]
	}
	u.Path = remaining

	u.valid = u.Path != ""
	return u
}

// Valid reports whether parsing succeeded (a non-empty path was found).
func (u URI) Valid() bool { return u.valid }

// Serialize renders the URI back into its canonical string form.
func (u URI) Serialize() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		if u.Host != "" {
			b.WriteString(u.Host)
			if u.Port > 0 {
				b.WriteByte(':')
				b.WriteString(strconv.Itoa(u.Port))
			}
		}
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// DecodedPath returns the percent-decoded path, with '+' left literal.
func (u URI) DecodedPath() string { return DecodePath(u.Path) }

// HasPathTraversal reports whether the decoded path is exactly "..",
// begins with "../", ends with "/..", or contains "/../".
func (u URI) HasPathTraversal() bool {
	decoded := u.DecodedPath()
	if decoded == ".." {
		return true
	}
	if strings.HasPrefix(decoded, "../") {
		return true
	}
	if strings.HasSuffix(decoded, "/..") {
		return true
	}
	if strings.Contains(decoded, "/../") {
		return true
	}
	return false
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

func decodeInternal(s string, plusAsSpace bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, lo := hexVal(s[i+1]), hexVal(s[i+2])
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		if s[i] == '+' && plusAsSpace {
			b.WriteByte(' ')
		} else {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// DecodePath percent-decodes str, treating '+' as a literal plus.
func DecodePath(str string) string { return decodeInternal(str, false) }

// DecodeQuery percent-decodes str, treating '+' as a space
// (application/x-www-form-urlencoded).
func DecodeQuery(str string) string { return decodeInternal(str, true) }

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	default:
		return false
	}
}

const hexDigits = "0123456789ABCDEF"

// Encode percent-encodes str, leaving RFC 3986 unreserved characters
// untouched.
func Encode(str string) string {
	var b strings.Builder
	b.Grow(len(str) * 3)
	for i := 0; i < len(str); i++ {
		c := str[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		}
	}
	return b.String()
}

// NormalizePath resolves "." and ".." segments against an anchor rooted
// at "/". A ".." at root is absorbed rather than erroring. A trailing
// slash present in the raw (not decoded) input is preserved in the
// output, unless the output is just "/".
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}

	decoded := DecodePath(path)
	absolute := len(decoded) > 0 && decoded[0] == '/'

	var segments []string
	var seg strings.Builder
	flush := func() {
		s := seg.String()
		seg.Reset()
		if s == "" {
			return
		}
		if s == ".." {
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		} else if s != "." {
			segments = append(segments, s)
		}
	}
	for i := 0; i < len(decoded); i++ {
		if decoded[i] == '/' {
			flush()
		} else {
			seg.WriteByte(decoded[i])
		}
	}
	flush()

	var b strings.Builder
	for i, s := range segments {
		if absolute || i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s)
	}
	result := b.String()
	if result == "" {
		result = "/"
	}

	if len(result) > 1 && len(path) > 0 && path[len(path)-1] == '/' {
		result += "/"
	}
	return result
}
