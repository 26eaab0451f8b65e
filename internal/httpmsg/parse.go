package httpmsg

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrMalformed is returned by ParseHead when the request-line or a header
// line doesn't fit the grammar. The connection maps it to a 400 response.
var ErrMalformed = errors.New("malformed request")

// ParseHead parses the request-line and header block out of raw, which
// must already contain a full "\r\n\r\n" terminator (the connection state
// machine is responsible for finding that boundary before calling this -
// see spec.md §4.3). It returns the parsed Request (with Body left nil;
// the caller slices the body out of its own read buffer using
// Content-Length) and the number of bytes consumed, i.e. the offset of
// the first body byte.
//
// Grounded on the teacher's server/protocol/parser.go parseRaw, adapted
// from zero-copy byte-slice views into owned strings since Request no
// longer shares storage with a pooled session arena.
func ParseHead(raw []byte) (*Request, int, error) {
	crs := 0
	findsep := func(start int, sep byte) int {
		idx := bytes.IndexByte(raw[start:], sep)
		if idx == -1 {
			return -1
		}
		return start + idx
	}

	req := &Request{}

	sep := findsep(crs, ' ')
	if sep == -1 {
		return nil, 0, ErrMalformed
	}
	req.RawMethod = string(raw[crs:sep])
	crs = sep + 1

	sep = findsep(crs, ' ')
	if sep == -1 {
		return nil, 0, ErrMalformed
	}
	req.RawURI = string(raw[crs:sep])
	crs = sep + 1

	sep = findsep(crs, '\n')
	if sep == -1 || sep == crs || raw[sep-1] != '\r' {
		return nil, 0, ErrMalformed
	}
	req.Version = string(raw[crs : sep-1])
	crs = sep + 1

	for {
		if crs+1 >= len(raw) {
			return nil, 0, ErrMalformed
		}
		if raw[crs] == '\r' && raw[crs+1] == '\n' {
			crs += 2
			break
		}

		lf := findsep(crs, '\n')
		if lf == -1 || lf == crs || raw[lf-1] != '\r' {
			return nil, 0, ErrMalformed
		}
		le := lf - 1

		coloni := findsep(crs, ':')
		if coloni == -1 || coloni > le {
			return nil, 0, ErrMalformed
		}

		vs := coloni + 1
		for vs < le && raw[vs] == ' ' {
			vs++
		}

		req.Headers.Set(string(raw[crs:coloni]), string(raw[vs:le]))
		crs = lf + 1
	}

	if m, ok := ParseMethod(req.RawMethod); ok {
		req.Method = m
	} else {
		req.Method = MethodUnknown
	}

	return req, crs, nil
}

// FindHeaderEnd returns the index just past the first "\r\n\r\n" in buf,
// or -1 if the boundary hasn't arrived yet. This is the sentinel position
// spec.md §4.3 calls "headers_end_pos".
func FindHeaderEnd(buf []byte) int {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx == -1 {
		return -1
	}
	return idx + 4
}
