package httpmsg

import (
	"html"
	"strconv"
)

// BuildStatusAndHeaders serialises a status line and header block
// (terminated by the blank line) into buf, in the teacher's
// append-to-growing-buffer style (server/protocol/builder.go BuildResp),
// generalized from a fixed destination slice to an append target since
// response sizes here are not bounded ahead of time the way the
// zero-alloc engine buffer was.
func BuildStatusAndHeaders(buf []byte, version string, status Status, headers Headers) []byte {
	buf = append(buf, version...)
	buf = append(buf, ' ')
	buf = append(buf, StatusLine(status)...)
	buf = append(buf, '\r', '\n')
	for _, h := range headers {
		buf = append(buf, h.Key...)
		buf = append(buf, ':', ' ')
		buf = append(buf, h.Val...)
		buf = append(buf, '\r', '\n')
	}
	buf = append(buf, '\r', '\n')
	return buf
}

// BuildResponse serialises a full response (status line, headers, blank
// line, body) into a fresh byte slice.
func BuildResponse(version string, status Status, headers Headers, body []byte) []byte {
	buf := make([]byte, 0, 256+len(body))
	buf = BuildStatusAndHeaders(buf, version, status, headers)
	buf = append(buf, body...)
	return buf
}

// ErrorBody renders the minimal HTML error page spec.md §4.3 mandates.
func ErrorBody(status Status) []byte {
	line := StatusLine(status)
	escaped := html.EscapeString(line)
	body := "<html><head><title>" + escaped + "</title></head><body><center><h1>" +
		escaped + "</h1></center></body></html>"
	return []byte(body)
}

// BuildErrorResponse builds a complete error response: the built-in HTML
// body (or a caller-supplied replacement read from a configured
// error_page file), Content-Type, Content-Length and the echoed version.
func BuildErrorResponse(version string, status Status, body []byte) []byte {
	if body == nil {
		body = ErrorBody(status)
	}
	headers := Headers{
		{Key: "Content-Type", Val: "text/html; charset=utf-8"},
		{Key: "Content-Length", Val: strconv.Itoa(len(body))},
	}
	return BuildResponse(version, status, headers, body)
}
