package handler

import (
	"html"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/devnode/goserver/internal/httpmsg"
	"github.com/devnode/goserver/internal/httpuri"
)

// Autoindex renders an HTML directory listing. Ported from
// original_source/src/handlers/AutoindexHandler.cpp.
type Autoindex struct {
	DirPath string // filesystem directory to list
	URIPath string // user-facing path, used for headings and hrefs
}

func (h *Autoindex) Start(ex *Exchange) Result {
	if ex.Request.Method != httpmsg.MethodGET && ex.Request.Method != httpmsg.MethodHEAD {
		ex.ExtraHeaders = httpmsg.Headers{{Key: "Allow", Val: "GET, HEAD"}}
		return ex.Fail(httpmsg.StatusMethodNotAllowed)
	}

	entries, err := os.ReadDir(h.DirPath)
	if err != nil {
		return ex.Fail(httpmsg.StatusInternalServerError)
	}

	names := make([]string, 0, len(entries))
	isDir := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		names = append(names, e.Name())
		isDir[e.Name()] = e.IsDir()
	}
	sort.Strings(names)

	base := h.URIPath
	if base == "" {
		base = "/"
	}
	if base[0] != '/' {
		base = "/" + base
	}
	if base[len(base)-1] != '/' {
		base += "/"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\r\n<html>\r\n<head>\r\n<meta charset=\"utf-8\">\r\n")
	title := html.EscapeString("Index of " + h.URIPath)
	b.WriteString("<title>" + title + "</title>\r\n</head>\r\n<body>\r\n")
	b.WriteString("<h1>" + title + "</h1>\r\n<ul>\r\n")
	for _, name := range names {
		href := base + httpuri.Encode(name)
		display := name
		if isDir[name] {
			href += "/"
			display += "/"
		}
		b.WriteString("<li><a href=\"" + html.EscapeString(href) + "\">" + html.EscapeString(display) + "</a></li>\r\n")
	}
	b.WriteString("</ul>\r\n</body>\r\n</html>\r\n")
	body := b.String()

	headers := httpmsg.Headers{
		{Key: "Content-Type", Val: "text/html; charset=utf-8"},
		{Key: "Content-Length", Val: strconv.Itoa(len(body))},
	}

	if ex.Request.Method == httpmsg.MethodHEAD {
		ex.WriteBuf = httpmsg.BuildStatusAndHeaders(nil, ex.Version, httpmsg.StatusOK, headers)
		return Done
	}
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, httpmsg.StatusOK, headers, []byte(body))
	return Done
}

func (h *Autoindex) Resume(ex *Exchange) Result { return Done }
