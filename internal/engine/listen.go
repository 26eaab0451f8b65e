package engine

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenSocket creates a non-blocking TCP listener bound to host:port.
// Ported from the teacher's server/engine/epoll.go's listenSocket, using
// golang.org/x/sys/unix in place of the deprecated syscall package and
// accepting a dotted-quad/hostname string the way original_source's
// Server::init resolves its configured host instead of a raw [4]byte.
func listenSocket(host string, port int) (int, error) {
	addr, err := resolveIPv4(host)
	if err != nil {
		return -1, errors.Wrapf(err, "resolve listen host %q", host)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "bind %s:%d", host, port)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "listen")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "set_nonblocking listen fd")
	}
	return fd, nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	if host == "" || host == "0.0.0.0" || host == "*" {
		return out, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return out, errors.Errorf("cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, errors.Errorf("host %q does not resolve to an IPv4 address", host)
	}
	copy(out[:], v4)
	return out, nil
}

func addrString(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
