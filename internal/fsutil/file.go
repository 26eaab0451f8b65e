package fsutil

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FileInfo wraps an opened file's descriptor, size, and guessed MIME
// type. Ported from original_source/src/utils/file_utils.hpp's FileInfo.
type FileInfo struct {
	File        *os.File
	Size        int64
	ContentType string
}

// OpenFile opens path read-only and stats it. Ported from
// original_source/src/utils/file_utils.cpp's openFile().
func OpenFile(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fsutil: open %q", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "fsutil: stat %q", path)
	}
	return &FileInfo{File: f, Size: st.Size(), ContentType: GuessMIME(path)}, nil
}

func (fi *FileInfo) Close() error {
	if fi.File == nil {
		return nil
	}
	err := fi.File.Close()
	fi.File = nil
	return err
}

// Pump streams a range of a file to a socket using sendfile(2), picking
// up where it left off across repeated calls when the socket's send
// buffer is full. Ported from original_source/src/utils/file_utils.cpp's
// streamToSocket(), adapted from a raw-fd sendfile loop to golang.org/x/sys/unix's
// binding of the same syscall.
type Pump struct {
	fi        *FileInfo
	offset    int64
	maxOffset int64
}

// NewPump creates a Pump that will send fi's bytes in [start, end] to
// whatever socket fd is passed to Step.
func NewPump(fi *FileInfo, start, end int64) *Pump {
	return &Pump{fi: fi, offset: start, maxOffset: end + 1}
}

// Done reports whether every requested byte has been sent.
func (p *Pump) Done() bool { return p.offset >= p.maxOffset }

// Step sends as much as the socket will currently accept. It returns
// (true, nil) once every byte has been sent, (false, nil) if the socket
// would block and Step should be retried after the next writability
// event, or a non-nil error on failure.
func (p *Pump) Step(sockFd int) (done bool, err error) {
	if p.Done() {
		return true, nil
	}

	fileFd := int(p.fi.File.Fd())
	for p.offset < p.maxOffset {
		remaining := int(p.maxOffset - p.offset)
		n, serr := unix.Sendfile(sockFd, fileFd, &p.offset, remaining)
		if serr != nil {
			if serr == unix.EAGAIN || serr == unix.EWOULDBLOCK {
				return false, nil
			}
			return false, errors.Wrap(serr, "fsutil: sendfile")
		}
		if n == 0 {
			break
		}
	}
	return p.Done(), nil
}
