// Package conn implements the per-connection request lifecycle: buffering
// reads until the header block is complete, dispatching to the matching
// server/location, resolving the filesystem path, and picking a handler.
// Grounded on original_source/src/core/Connection.cpp/.hpp.
package conn

import (
	"github.com/devnode/goserver/internal/config"
	"github.com/devnode/goserver/internal/handler"
	"github.com/devnode/goserver/internal/httpmsg"
)

// State is the connection's position in its one-request lifecycle. The
// server never reuses a connection for a second request (neither does
// original_source's ServerManager, which closes the fd once handleWrite
// finishes), so there is no "idle, waiting for next request" state.
type State int

const (
	StateReadingHeaders State = iota
	StateReadingBody
	StateDispatching
	StateRunningHandler
	StateWriting
	StateDone
)

// Conn holds everything the event loop needs to drive one client
// connection through to completion.
type Conn struct {
	Fd       int
	ServerFd int

	ReadBuf     []byte
	headersEnd  int // -1 until the "\r\n\r\n" boundary is found
	Request     *httpmsg.Request
	bodyStart   int
	contentLen  int

	WriteBuf    []byte
	WriteOffset int

	State State

	activeHandler handler.Handler
	ex            *handler.Exchange
}

// New creates a connection freshly accepted on listenFd.
func New(fd, listenFd int) *Conn {
	return &Conn{Fd: fd, ServerFd: listenFd, headersEnd: -1, State: StateReadingHeaders}
}

// Feed appends newly read bytes and records where the header block ends
// once "\r\n\r\n" has arrived; HeadersComplete reports whether it has.
func (c *Conn) Feed(data []byte) {
	c.ReadBuf = append(c.ReadBuf, data...)
	if c.headersEnd == -1 {
		if end := httpmsg.FindHeaderEnd(c.ReadBuf); end != -1 {
			c.headersEnd = end
		}
	}
}

// HeadersComplete reports whether "\r\n\r\n" has arrived.
func (c *Conn) HeadersComplete() bool { return c.headersEnd != -1 }

// ParseHeaders parses the request line and header block. Call only once
// HeadersComplete is true.
func (c *Conn) ParseHeaders() error {
	req, consumed, err := httpmsg.ParseHead(c.ReadBuf[:c.headersEnd])
	if err != nil {
		return err
	}
	c.Request = req
	c.bodyStart = consumed
	c.contentLen = req.ContentLength()
	c.State = StateReadingBody
	return nil
}

// BodyComplete reports whether every body byte Content-Length promised
// has arrived.
func (c *Conn) BodyComplete() bool {
	return len(c.ReadBuf)-c.bodyStart >= c.contentLen
}

// ContentLength returns the parsed request body length.
func (c *Conn) ContentLength() int { return c.contentLen }

// FinishBody slices the body out of the read buffer once BodyComplete is
// true, attaching it to Request.
func (c *Conn) FinishBody() {
	c.Request.Body = c.ReadBuf[c.bodyStart : c.bodyStart+c.contentLen]
	c.State = StateDispatching
}

// Exchange returns the handler.Exchange built by Dispatch, or nil before
// dispatch runs.
func (c *Conn) Exchange() *handler.Exchange { return c.ex }

// RespondError renders status as the final response, bypassing handler
// dispatch. Used for malformed requests, unsupported HTTP versions and
// oversized bodies.
func (c *Conn) RespondError(version string, status httpmsg.Status, extra httpmsg.Headers) {
	ex := &handler.Exchange{Version: version, ExtraHeaders: extra, SockFd: c.Fd}
	ex.Fail(status)
	c.WriteBuf = ex.WriteBuf
	c.State = StateWriting
}

// Dispatch matches the request against srv's locations, validates it,
// resolves the filesystem target, selects a handler, and runs Start.
func (c *Conn) Dispatch(tables *config.Tables, srv *config.Server) {
	version := c.Request.EchoVersion()

	if c.Request.Version != "HTTP/1.0" && c.Request.Version != "HTTP/1.1" {
		c.RespondError(version, httpmsg.StatusHTTPVersionNotSupported, nil)
		return
	}

	path, _ := splitQuery(c.Request.RawURI)

	loc := srv.MatchLocation(path)

	maxBody := tables.MaxRequestBodyFor(srv, loc)
	if maxBody > 0 && int64(len(c.Request.Body)) > maxBody {
		c.RespondError(version, httpmsg.StatusPayloadTooLarge, nil)
		return
	}

	if status, allow := validateMethod(c.Request, loc); status != httpmsg.StatusUnknown {
		var extra httpmsg.Headers
		if allow != "" {
			extra = httpmsg.Headers{{Key: "Allow", Val: allow}}
		}
		c.respondWithErrorPage(tables, srv, loc, version, status, extra)
		return
	}

	h, ex, status := buildHandler(loc, srv, path, c.Request, c.Fd, version)
	if h == nil {
		c.respondWithErrorPage(tables, srv, loc, version, status, nil)
		return
	}

	c.ex = ex
	c.activeHandler = h
	c.State = StateRunningHandler
	c.runResult(h.Start(ex), tables, srv, loc, version)
}

// Resume drives the active handler after a WouldBlock, e.g. once the
// file pump's socket is writable again or the CGI pipe has more output.
func (c *Conn) Resume() {
	if c.activeHandler == nil {
		c.State = StateDone
		return
	}
	c.runResult(c.activeHandler.Resume(c.ex), nil, nil, nil, c.ex.Version)
}

// ActiveHandler exposes the in-flight handler so the event loop can type
// -assert it against handler.MonitorFD for CGI's independent pipe fd.
func (c *Conn) ActiveHandler() handler.Handler { return c.activeHandler }

func (c *Conn) runResult(r handler.Result, tables *config.Tables, srv *config.Server, loc *config.Location, version string) {
	switch r {
	case handler.Done:
		c.WriteBuf = c.ex.WriteBuf
		c.activeHandler = nil
		c.State = StateWriting
	case handler.Error:
		if tables != nil {
			c.respondWithErrorPage(tables, srv, loc, version, c.ex.Status, c.ex.ExtraHeaders)
		} else {
			c.WriteBuf = c.ex.WriteBuf
		}
		c.activeHandler = nil
		c.State = StateWriting
	case handler.WouldBlock:
		// stay in StateRunningHandler; the event loop will call Resume.
		// On Start, stage the header block a streaming handler built so
		// the event loop flushes it before the body is pumped.
		if tables != nil {
			c.WriteBuf = c.ex.WriteBuf
		}
	}
}

// respondWithErrorPage renders status. If srv/loc configure an
// error_page for this status, that page's path is served as a static
// file instead of the built-in HTML page; otherwise the built-in page
// is used. Ported from the error_page resolution in
// original_source/Config.cpp combined with Connection::prepareErrorResponse.
func (c *Conn) respondWithErrorPage(tables *config.Tables, srv *config.Server, loc *config.Location, version string, status httpmsg.Status, extra httpmsg.Headers) {
	if page, ok := tables.ErrorPageFor(srv, loc, int(status)); ok {
		fh := &handler.File{Path: page}
		ex := &handler.Exchange{
			Request: &httpmsg.Request{Method: httpmsg.MethodGET, Version: version},
			Version: version,
			SockFd:  c.Fd,
		}
		switch fh.Start(ex) {
		case handler.Done:
			c.WriteBuf = ex.WriteBuf
			c.State = StateWriting
			return
		case handler.WouldBlock:
			c.ex = ex
			c.activeHandler = fh
			c.WriteBuf = ex.WriteBuf
			c.State = StateRunningHandler
			return
		case handler.Error:
			// Configured error_page target itself doesn't exist; fall
			// through to the built-in page below.
		}
	}
	ex := &handler.Exchange{Version: version, ExtraHeaders: extra, SockFd: c.Fd}
	ex.Fail(status)
	c.WriteBuf = ex.WriteBuf
	c.State = StateWriting
}

func splitQuery(rawURI string) (path, query string) {
	for i := 0; i < len(rawURI); i++ {
		if rawURI[i] == '?' {
			return rawURI[:i], rawURI[i+1:]
		}
	}
	return rawURI, ""
}
