package conn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devnode/goserver/internal/config"
	"github.com/devnode/goserver/internal/handler"
)

func dispatchRaw(t *testing.T, tbl *config.Tables, raw string) *Conn {
	t.Helper()
	c := New(3, 4)
	c.Feed([]byte(raw))
	if !c.HeadersComplete() {
		t.Fatalf("headers not complete for: %q", raw)
	}
	if err := c.ParseHeaders(); err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	if !c.BodyComplete() {
		t.Fatalf("expected body complete (no Content-Length)")
	}
	c.FinishBody()
	c.Dispatch(tbl, &tbl.Servers[0])
	return c
}

func TestDispatchStaticFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644)

	tbl, err := config.LoadString(`
server {
    listen 8080;
    location / { root ` + dir + `; index index.html; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	c := dispatchRaw(t, tbl, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if c.State != StateRunningHandler {
		t.Fatalf("state = %v, want StateRunningHandler (streaming)", c.State)
	}
	if !strings.Contains(string(c.WriteBuf), "200") {
		t.Errorf("expected 200 OK headers, got %q", c.WriteBuf)
	}
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	dir := t.TempDir()
	tbl, err := config.LoadString(`
server {
    listen 8080;
    location / { root ` + dir + `; allow_methods GET; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "DELETE / HTTP/1.1\r\nHost: x\r\n\r\n")
	if c.State != StateWriting {
		t.Fatalf("state = %v, want StateWriting", c.State)
	}
	if !strings.Contains(string(c.WriteBuf), "405") {
		t.Errorf("expected 405, got %q", c.WriteBuf)
	}
}

func TestDispatchRedirect(t *testing.T) {
	tbl, err := config.LoadString(`
server {
    listen 8080;
    location /old { redirect 301 /new; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "GET /old HTTP/1.1\r\nHost: x\r\n\r\n")
	if c.State != StateWriting {
		t.Fatalf("state = %v, want StateWriting", c.State)
	}
	out := string(c.WriteBuf)
	if !strings.Contains(out, "301") || !strings.Contains(out, "Location: /new") {
		t.Errorf("unexpected redirect response: %q", out)
	}
}

func TestDispatchPathTraversalForbidden(t *testing.T) {
	dir := t.TempDir()
	tbl, err := config.LoadString(`
server {
    listen 8080;
    location / { root ` + dir + `; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "GET /../etc/passwd HTTP/1.1\r\nHost: x\r\n\r\n")
	if !strings.Contains(string(c.WriteBuf), "403") {
		t.Errorf("expected 403, got %q", c.WriteBuf)
	}
}

func TestDispatchNoLocationMatchUsesServerDefaults(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644)

	tbl, err := config.LoadString(`
server {
    listen 8080;
    root ` + dir + `;
    index index.html;
    location /only { root /tmp; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "GET /elsewhere HTTP/1.1\r\nHost: x\r\n\r\n")
	if c.State != StateRunningHandler {
		t.Fatalf("state = %v, want StateRunningHandler (streaming)", c.State)
	}
	if !strings.Contains(string(c.WriteBuf), "200") {
		t.Errorf("expected 200 OK served from server-level defaults, got %q", c.WriteBuf)
	}
}

func TestDispatchNoLocationMatchNoServerRoot500(t *testing.T) {
	tbl, err := config.LoadString(`
server {
    listen 8080;
    location /only { root /tmp; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "GET /elsewhere HTTP/1.1\r\nHost: x\r\n\r\n")
	if !strings.Contains(string(c.WriteBuf), "500") {
		t.Errorf("expected 500 (no root anywhere), got %q", c.WriteBuf)
	}
}

func TestDispatchMaxRequestBodyTooLarge(t *testing.T) {
	tbl, err := config.LoadString(`
server {
    listen 8080;
    max_request_body 5;
    location / { root /tmp; allow_methods POST; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	c := dispatchRaw(t, tbl, "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 20\r\n\r\n01234567890123456789")
	if !strings.Contains(string(c.WriteBuf), "413") {
		t.Errorf("expected 413, got %q", c.WriteBuf)
	}
}

func TestConnFeedFindsHeaderBoundaryAcrossCalls(t *testing.T) {
	c := New(1, 2)
	c.Feed([]byte("GET / HTTP/1.1\r\n"))
	if c.HeadersComplete() {
		t.Fatal("should not be complete yet")
	}
	c.Feed([]byte("Host: x\r\n\r\n"))
	if !c.HeadersComplete() {
		t.Fatal("expected headers complete after final CRLF")
	}
}

var _ = handler.Done
