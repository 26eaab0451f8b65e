package handler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devnode/goserver/internal/httpmsg"
)

func newExchange(method httpmsg.Method) *Exchange {
	return &Exchange{
		Request: &httpmsg.Request{Method: method, Version: "HTTP/1.1"},
		Version: "HTTP/1.1",
		SockFd:  -1,
	}
}

func TestRedirectStart(t *testing.T) {
	h := &Redirect{Code: httpmsg.StatusMovedPermanently, Target: "/new"}
	ex := newExchange(httpmsg.MethodGET)
	if r := h.Start(ex); r != Done {
		t.Fatalf("Start() = %v, want Done", r)
	}
	out := string(ex.WriteBuf)
	if !strings.Contains(out, "301") || !strings.Contains(out, "Location: /new") {
		t.Errorf("unexpected redirect response: %q", out)
	}
}

func TestFileHandlerGetNotFound(t *testing.T) {
	h := &File{Path: "/nonexistent/path/file.txt"}
	ex := newExchange(httpmsg.MethodGET)
	if r := h.Start(ex); r != Error {
		t.Fatalf("Start() = %v, want Error", r)
	}
	if !strings.Contains(string(ex.WriteBuf), "404") {
		t.Errorf("expected 404 in response, got %q", ex.WriteBuf)
	}
}

func TestFileHandlerGetStreams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	content := "hello world"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := &File{Path: path}
	ex := newExchange(httpmsg.MethodGET)
	r := h.Start(ex)
	if r != WouldBlock {
		t.Fatalf("Start() = %v, want WouldBlock (streaming via Pump)", r)
	}
	if ex.Pump == nil {
		t.Fatal("expected Pump to be set for GET")
	}
	if !strings.Contains(string(ex.WriteBuf), "Content-Length: 11") {
		t.Errorf("expected Content-Length: 11 in header block, got %q", ex.WriteBuf)
	}
}

func TestFileHandlerPutCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	h := &File{Path: path}
	ex := newExchange(httpmsg.MethodPUT)
	ex.Request.Body = []byte("payload")
	r := h.Start(ex)
	if r != Done {
		t.Fatalf("Start() = %v, want Done", r)
	}
	if !strings.Contains(string(ex.WriteBuf), "201") {
		t.Errorf("expected 201 Created, got %q", ex.WriteBuf)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Errorf("file contents = %q, %v; want \"payload\"", data, err)
	}
}

func TestFileHandlerDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	h := &File{Path: path}
	ex := newExchange(httpmsg.MethodDELETE)
	r := h.Start(ex)
	if r != Done {
		t.Fatalf("Start() = %v, want Done", r)
	}
	if !strings.Contains(string(ex.WriteBuf), "204") {
		t.Errorf("expected 204 No Content, got %q", ex.WriteBuf)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed")
	}
}

func TestFileHandlerMethodNotAllowed(t *testing.T) {
	h := &File{Path: "/tmp/whatever"}
	ex := newExchange(httpmsg.MethodUnknown)
	r := h.Start(ex)
	if r != Error {
		t.Fatalf("Start() = %v, want Error", r)
	}
	if !strings.Contains(string(ex.WriteBuf), "405") {
		t.Errorf("expected 405, got %q", ex.WriteBuf)
	}
}

func TestAutoindexListsEntriesSorted(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)

	h := &Autoindex{DirPath: dir, URIPath: "/files"}
	ex := newExchange(httpmsg.MethodGET)
	r := h.Start(ex)
	if r != Done {
		t.Fatalf("Start() = %v, want Done", r)
	}
	out := string(ex.WriteBuf)
	aPos := strings.Index(out, "a.txt")
	bPos := strings.Index(out, "b.txt")
	if aPos == -1 || bPos == -1 || aPos > bPos {
		t.Errorf("expected a.txt before b.txt in listing: %q", out)
	}
	if !strings.Contains(out, "sub/") {
		t.Errorf("expected directory entry with trailing slash, got %q", out)
	}
}

func TestAutoindexMethodNotAllowed(t *testing.T) {
	h := &Autoindex{DirPath: t.TempDir(), URIPath: "/"}
	ex := newExchange(httpmsg.MethodPUT)
	r := h.Start(ex)
	if r != Error {
		t.Fatalf("Start() = %v, want Error", r)
	}
}

func TestValidateScriptRejectsTraversal(t *testing.T) {
	if err := validateScript("../../etc/passwd.sh", "../.."); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func TestValidateScriptRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.exe")
	os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755)
	if err := validateScript(path, dir); err == nil {
		t.Error("expected disallowed extension to be rejected")
	}
}

func TestValidateScriptRequiresExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")
	os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644)
	if err := validateScript(path, dir); err == nil {
		t.Error("expected non-executable script to be rejected")
	}
}

func TestValidateScriptRejectsEscapeOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(outside, "script.sh")
	os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755)
	if err := validateScript(path, dir); err == nil {
		t.Error("expected script resolving outside the declared cgi root to be rejected")
	}
}

func TestCGIRunsScriptAndParsesOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")
	script := "#!/bin/sh\necho 'Content-Type: text/plain'\necho ''\necho -n 'hello from cgi'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := &CGI{ScriptPath: path, Root: dir, Env: []string{"PATH=/usr/bin:/bin"}}
	ex := newExchange(httpmsg.MethodGET)

	var r Result
	for i := 0; i < 1000; i++ {
		if i == 0 {
			r = h.Start(ex)
		} else {
			r = h.Resume(ex)
		}
		if r != WouldBlock {
			break
		}
	}
	if r != Done {
		t.Fatalf("CGI never completed, last result %v", r)
	}
	if !strings.Contains(string(ex.WriteBuf), "hello from cgi") {
		t.Errorf("expected CGI body in output, got %q", ex.WriteBuf)
	}
}
