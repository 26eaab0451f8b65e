// Package handler implements the pluggable per-request handlers: static
// file serving, directory listings, redirects and CGI. Each handler is a
// tagged-variant Start/Resume state machine rather than the teacher's
// virtual-dispatch IHandler, since Go has no base-class vtable to hang a
// polymorphic handler off of - see original_source/src/core/IHandler.hpp
// for the interface this replaces.
package handler

import (
	"github.com/devnode/goserver/internal/fsutil"
	"github.com/devnode/goserver/internal/httpmsg"
)

// Result is what a handler's Start or Resume call reports back to the
// connection driving it.
type Result int

const (
	// Done means Exchange.WriteBuf now holds the complete response (or,
	// for a streaming GET, the complete header block plus whatever the
	// Pump will stream next) and the handler needs no further calls.
	Done Result = iota
	// WouldBlock means the handler is waiting on I/O (a CGI pipe, a file
	// send) and must be invoked again via Resume once that fd is ready.
	WouldBlock
	// Error means the handler failed outright; Exchange.WriteBuf already
	// holds an error response and no Resume call is needed.
	Error
)

// Handler is the Start/Resume contract every request handler implements.
type Handler interface {
	Start(ex *Exchange) Result
	Resume(ex *Exchange) Result
}

// MonitorFD is implemented by handlers (currently only CGI) that hand
// the connection a second file descriptor to register with the event
// loop independently of the client socket - see SPEC_FULL.md §4.5's
// "independent CGI pipe registration" resolution of spec.md §9's open
// question on one-fd-per-connection epoll registration.
type MonitorFD interface {
	MonitorFD() int
}

// Exchange is the per-request state a handler reads and writes. The
// connection package constructs one per request and drives Start/Resume
// against it; the handler never sees the raw connection type.
type Exchange struct {
	Request *httpmsg.Request
	Version string // echoed HTTP version for the response status line

	// ReqPath is the request path, already percent-decoded and resolved
	// against the location's root, not yet checked for existence.
	ReqPath string
	// FSPath is the resolved filesystem path the handler should act on.
	FSPath string
	// URIPath is the unresolved, percent-encoded URI path, used for
	// display purposes (autoindex headings, href generation).
	URIPath string

	// SockFd is the client socket, needed by handlers that stream
	// directly to it (file GET via sendfile).
	SockFd int

	// WriteBuf accumulates the bytes to send once the handler reports
	// Done or Error. Handlers that stream a body separately (file GET)
	// leave WriteBuf holding only the header block and drive Pump
	// instead.
	WriteBuf []byte
	Pump     *fsutil.Pump

	// ExtraHeaders lets a handler contribute response headers (e.g.
	// "Allow") before Fail renders the error body.
	ExtraHeaders httpmsg.Headers

	// Status records the last status Fail rendered, so the connection
	// can look up a configured error_page for it without re-parsing
	// WriteBuf.
	Status httpmsg.Status
}

// Fail renders a complete error response for status into WriteBuf and
// returns Error, the shape every handler uses on failure. Any headers
// staged in ExtraHeaders (e.g. "Allow" on a 405) are folded in ahead of
// the standard Content-Type/Content-Length pair. Mirrors
// Connection::prepareErrorResponse in original_source/Connection.cpp.
func (ex *Exchange) Fail(status httpmsg.Status) Result {
	body := httpmsg.ErrorBody(status)
	headers := append(httpmsg.Headers{}, ex.ExtraHeaders...)
	headers = append(headers,
		httpmsg.Header{Key: "Content-Type", Val: "text/html; charset=utf-8"},
		httpmsg.Header{Key: "Content-Length", Val: itoa(len(body))},
	)
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, status, headers, body)
	ex.Status = status
	return Error
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
