package fsutil

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidRange is returned by ParseRange when the header doesn't
// parse or its bounds don't fit the file.
var ErrInvalidRange = errors.New("invalid range")

// ParseRange parses a single-range "Range: bytes=..." header value
// against fileSize, returning the inclusive [start, end] byte bounds.
// Supports "start-end", "start-", and "-suffix" forms. Ported from
// original_source/src/utils/file_utils.cpp's parseRange().
func ParseRange(header string, fileSize int64) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, ErrInvalidRange
	}
	spec := header[len(prefix):]

	dash := strings.IndexByte(spec, '-')
	if dash == -1 {
		return 0, 0, ErrInvalidRange
	}
	first, second := spec[:dash], spec[dash+1:]

	if first == "" {
		if second == "" {
			return 0, 0, ErrInvalidRange
		}
		suffix, perr := strconv.ParseInt(second, 10, 64)
		if perr != nil || suffix <= 0 {
			return 0, 0, ErrInvalidRange
		}
		if suffix > fileSize {
			suffix = fileSize
		}
		return fileSize - suffix, fileSize - 1, nil
	}

	s, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil {
		return 0, 0, ErrInvalidRange
	}

	var e int64
	if second == "" {
		e = fileSize - 1
	} else {
		e, perr = strconv.ParseInt(second, 10, 64)
		if perr != nil {
			return 0, 0, ErrInvalidRange
		}
	}

	if s < 0 || (fileSize > 0 && s >= fileSize) {
		return 0, 0, ErrInvalidRange
	}
	if e < s {
		return 0, 0, ErrInvalidRange
	}
	if e >= fileSize {
		e = fileSize - 1
	}

	return s, e, nil
}
