package httpmsg

// Request is a fully parsed HTTP request: request-line plus headers.
// The body is sliced out separately by the connection once Content-Length
// is known, since the body may still be arriving when the headers
// complete.
type Request struct {
	RawMethod string // the token as it appeared on the wire
	Method    Method
	RawURI    string // unparsed request-target, e.g. "/a/b?x=1"
	Version   string // "HTTP/1.1" or "HTTP/1.0"

	Headers Headers
	Body    []byte
}

// ContentLength returns the parsed Content-Length header value, or 0 if
// absent or malformed (absent means "no body" per spec).
func (r *Request) ContentLength() int {
	v, ok := r.Headers.Get("Content-Length")
	if !ok {
		return 0
	}
	n := 0
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// IsHTTP10 reports whether the request declared HTTP/1.0.
func (r *Request) IsHTTP10() bool { return r.Version == "HTTP/1.0" }

// EchoVersion returns the HTTP version to use on the response status
// line: the request's own version when it is 1.0 or 1.1, else 1.1. This
// is the "echoing" variant spec.md adopts over hard-coding HTTP/1.1.
func (r *Request) EchoVersion() string {
	if r.Version == "HTTP/1.0" || r.Version == "HTTP/1.1" {
		return r.Version
	}
	return "HTTP/1.1"
}
