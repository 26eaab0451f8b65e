package fsutil

import "strings"

// GuessMIME maps a file's extension to a content type. Ported from
// original_source/src/utils/file_utils.cpp's guessMime().
func GuessMIME(path string) string {
	const def = "application/octet-stream"

	dot := strings.LastIndexByte(path, '.')
	if dot == -1 {
		return def
	}
	switch strings.ToLower(path[dot+1:]) {
	case "html", "htm":
		return "text/html; charset=utf-8"
	case "txt":
		return "text/plain; charset=utf-8"
	case "css":
		return "text/css"
	case "js":
		return "application/javascript"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return def
	}
}
