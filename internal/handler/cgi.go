package handler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pkg/errors"

	"github.com/devnode/goserver/internal/httpmsg"
)

var errScriptUnsafe = errors.New("cgi: script path failed validation")

// DefaultCGITimeout bounds how long a CGI script may run before it is
// killed and the request answered with 504. The original C++ handler
// has no such limit - see original_source/src/handlers/CgiHandler.cpp's
// own comment noting the missing timeout as a known gap; SPEC_FULL.md
// §9 adopts fixing it.
const DefaultCGITimeout = 30 * time.Second

var allowedCGIExtensions = []string{".sh", ".py", ".pl", ".php", ".cgi"}

// CGI executes an external script via os/exec (Go's runtime cannot
// safely fork(2) a multi-threaded process, so this replaces the
// original's raw fork/exec/dup2 dance in
// original_source/src/handlers/CgiHandler.cpp with the idiomatic
// equivalent) and streams its stdout back as the response, splitting
// the CGI header block from the body the way the original's
// parseOutput does.
type CGI struct {
	ScriptPath string
	Root       string // declared cgi location's root directory, the only tree a script may resolve inside
	Env        []string
	Timeout    time.Duration

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	deadline time.Time
	stdout   *os.File

	headersParsed bool
	accumulated   []byte
}

func (h *CGI) MonitorFD() int {
	if h.stdout == nil {
		return -1
	}
	return int(h.stdout.Fd())
}

// Expired reports whether the script's timeout has already elapsed, so
// the event loop can force a Resume call and get back a 504 even when
// a hung child never produces more pipe output.
func (h *CGI) Expired() bool {
	return h.cmd != nil && time.Now().After(h.deadline)
}

func (h *CGI) Start(ex *Exchange) Result {
	if err := validateScript(h.ScriptPath, h.Root); err != nil {
		return ex.Fail(httpmsg.StatusForbidden)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultCGITimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	h.cancel = cancel
	h.deadline = time.Now().Add(timeout)

	cmd := exec.CommandContext(ctx, absExecPath(h.ScriptPath))
	cmd.Dir = filepath.Dir(h.ScriptPath)
	cmd.Env = h.Env

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		cancel()
		return ex.Fail(httpmsg.StatusInternalServerError)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stdoutW

	var stdinW *os.File
	if len(ex.Request.Body) > 0 {
		stdinR, w, perr := os.Pipe()
		if perr != nil {
			stdoutR.Close()
			stdoutW.Close()
			cancel()
			return ex.Fail(httpmsg.StatusInternalServerError)
		}
		cmd.Stdin = stdinR
		stdinW = w
		defer stdinR.Close()
	}

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		if stdinW != nil {
			stdinW.Close()
		}
		cancel()
		return ex.Fail(httpmsg.StatusInternalServerError)
	}
	stdoutW.Close()

	if stdinW != nil {
		stdinW.Write(ex.Request.Body)
		stdinW.Close()
	}

	if err := unix.SetNonblock(int(stdoutR.Fd()), true); err != nil {
		stdoutR.Close()
		cancel()
		return ex.Fail(httpmsg.StatusInternalServerError)
	}

	h.cmd = cmd
	h.stdout = stdoutR
	return h.readOutput(ex)
}

func (h *CGI) Resume(ex *Exchange) Result {
	if h.cmd == nil {
		return ex.Fail(httpmsg.StatusInternalServerError)
	}
	return h.readOutput(ex)
}

func (h *CGI) readOutput(ex *Exchange) Result {
	// Reads through unix.Read on the raw fd rather than h.stdout.Read:
	// os.Pipe's *os.File is registered with the runtime's own poller,
	// which would park this goroutine instead of surfacing EAGAIN - the
	// event loop drives this fd's readiness itself via MonitorFD.
	fd := int(h.stdout.Fd())
	buf := make([]byte, 8192)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			h.accumulated = append(h.accumulated, buf[:n]...)
		}
		if err != nil {
			if err == unix.EAGAIN {
				return WouldBlock
			}
			break // EOF or real read error: fall through to reap the child
		}
		if n == 0 {
			break
		}
	}

	h.stdout.Close()
	waitErr := h.cmd.Wait()
	timedOut := time.Now().After(h.deadline) && waitErr != nil
	h.cancel()

	if timedOut {
		return ex.Fail(httpmsg.StatusGatewayTimeout)
	}
	if waitErr != nil {
		return ex.Fail(httpmsg.StatusInternalServerError)
	}

	h.parseOutput(ex)
	return Done
}

// parseOutput splits the CGI's output into its header block and body,
// honoring a "Status: 200 OK" pseudo-header the way
// original_source/src/handlers/CgiHandler.cpp's parseOutput does, and
// falls back to a plain 200 text/plain response if the script never
// emitted a header terminator.
func (h *CGI) parseOutput(ex *Exchange) {
	sep := []byte("\r\n\r\n")
	sepLen := 4
	idx := bytes.Index(h.accumulated, sep)
	if idx == -1 {
		sep = []byte("\n\n")
		sepLen = 2
		idx = bytes.Index(h.accumulated, sep)
	}
	if idx == -1 {
		headers := httpmsg.Headers{{Key: "Content-Type", Val: "text/plain"}}
		ex.WriteBuf = httpmsg.BuildStatusAndHeaders(nil, ex.Version, httpmsg.StatusOK, headers)
		ex.WriteBuf = append(ex.WriteBuf, h.accumulated...)
		return
	}

	headerPart := string(h.accumulated[:idx])
	bodyPart := h.accumulated[idx+sepLen:]

	status := httpmsg.StatusOK
	var headers httpmsg.Headers
	for _, line := range strings.Split(headerPart, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := line[:colon]
		val := strings.TrimLeft(line[colon+1:], " ")
		if name == "Status" {
			if sp := strings.IndexByte(val, ' '); sp != -1 {
				if code, err := strconv.Atoi(val[:sp]); err == nil {
					status = httpmsg.Status(code)
				}
			}
			continue
		}
		headers = append(headers, httpmsg.Header{Key: name, Val: val})
	}

	ex.WriteBuf = httpmsg.BuildStatusAndHeaders(nil, ex.Version, status, headers)
	ex.WriteBuf = append(ex.WriteBuf, bodyPart...)
}

// validateScript checks that path is a regular, executable file with an
// allowed extension that resolves (after following symlinks) inside
// allowedRoot. Ported from
// original_source/src/handlers/CgiHandler.cpp's isPathTraversalSafe,
// which realpath()s the script and its configured cgi directory and
// requires one to contain the other - a literal ".." substring check
// alone lets a symlink inside the cgi root point outside it.
func validateScript(path, allowedRoot string) error {
	if strings.Contains(path, "..") {
		return errScriptUnsafe
	}

	realRoot, err := filepath.EvalSymlinks(allowedRoot)
	if err != nil {
		return errors.Wrap(err, "cgi: resolving configured root")
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	if realPath != realRoot && !strings.HasPrefix(realPath, realRoot+string(filepath.Separator)) {
		return errScriptUnsafe
	}

	st, err := os.Stat(realPath)
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return errScriptUnsafe
	}
	if st.Mode().Perm()&0o111 == 0 {
		return errScriptUnsafe
	}
	ext := filepath.Ext(path)
	for _, allowed := range allowedCGIExtensions {
		if ext == allowed {
			return nil
		}
	}
	return errScriptUnsafe
}

func absExecPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	// cmd.Dir is already the script's directory, and a relative
	// exec.Cmd path is resolved against it.
	return "./" + filepath.Base(path)
}
