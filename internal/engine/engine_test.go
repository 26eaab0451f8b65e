package engine

import (
	"bufio"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/devnode/goserver/internal/applog"
	"github.com/devnode/goserver/internal/config"
)

func TestResolveIPv4(t *testing.T) {
	cases := []struct {
		host string
		want [4]byte
	}{
		{"", [4]byte{0, 0, 0, 0}},
		{"0.0.0.0", [4]byte{0, 0, 0, 0}},
		{"127.0.0.1", [4]byte{127, 0, 0, 1}},
	}
	for _, c := range cases {
		got, err := resolveIPv4(c.host)
		if err != nil {
			t.Fatalf("resolveIPv4(%q): %v", c.host, err)
		}
		if got != c.want {
			t.Errorf("resolveIPv4(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestListenSocketAcceptsConnection(t *testing.T) {
	fd, err := listenSocket("127.0.0.1", 18453)
	if err != nil {
		t.Fatalf("listenSocket: %v", err)
	}
	defer unix.Close(fd)

	dialDone := make(chan error, 1)
	go func() {
		c, derr := net.Dial("tcp", "127.0.0.1:18453")
		if derr == nil {
			c.Close()
		}
		dialDone <- derr
	}()

	// Accepting from a non-blocking listener may need a couple of
	// retries until the dial completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cfd, _, aerr := unix.Accept(fd)
		if aerr == nil {
			unix.Close(cfd)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("accept never succeeded: %v", aerr)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := <-dialDone; err != nil {
		t.Fatalf("dial: %v", err)
	}
}

func TestEngineServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/index.html", []byte("hello from engine"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tbl, err := config.LoadString(`
server {
    listen 127.0.0.1:18454;
    location / { root ` + dir + `; index index.html; }
}
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	log := applog.New(applog.LevelError)
	defer log.Close()

	e, err := New(tbl, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run() }()

	var resp string
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, derr := net.DialTimeout("tcp", "127.0.0.1:18454", 200*time.Millisecond)
		if derr == nil {
			conn.SetDeadline(time.Now().Add(2 * time.Second))
			conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
			data, _ := bufio.NewReader(conn).ReadString(0)
			resp = data
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("could not connect to engine listener: %v", derr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !strings.Contains(resp, "200") {
		t.Errorf("expected 200 OK, got %q", resp)
	}
	if !strings.Contains(resp, "hello from engine") {
		t.Errorf("expected fixture body in response, got %q", resp)
	}

	syscall.Kill(os.Getpid(), syscall.SIGTERM)
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop after SIGTERM")
	}
	e.Shutdown()
}
