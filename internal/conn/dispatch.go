package conn

import (
	"strconv"
	"strings"

	"github.com/devnode/goserver/internal/config"
	"github.com/devnode/goserver/internal/handler"
	"github.com/devnode/goserver/internal/httpmsg"
	"github.com/devnode/goserver/internal/httpuri"
)

// defaultAllowedMethods applies when a location carries no allow_methods
// directive. Ported from original_source/utils.cpp's
// initDefaultHttpMethods, used by both Server's and Location's default
// constructors (Location.cpp:9/21, Server.cpp:24/35).
var defaultAllowedMethods = map[string]bool{"GET": true, "POST": true, "PUT": true, "DELETE": true, "HEAD": true}

// validateMethod checks the request method against loc's allow_methods.
// Returns StatusUnknown (0) when the method is fine. Ported from
// original_source/src/core/Connection.cpp's validateRequestForLocation,
// minus the protocol-version check (handled by the caller before this
// runs).
func validateMethod(req *httpmsg.Request, loc *config.Location) (httpmsg.Status, string) {
	if req.Method == httpmsg.MethodUnknown {
		return httpmsg.StatusNotImplemented, ""
	}

	allowed := defaultAllowedMethods
	if len(loc.AllowedMethods) > 0 {
		allowed = make(map[string]bool, len(loc.AllowedMethods))
		for _, m := range loc.AllowedMethods {
			allowed[strings.ToUpper(m)] = true
		}
	}

	if !allowed[req.RawMethod] {
		list := make([]string, 0, len(allowed))
		for m := range allowed {
			list = append(list, m)
		}
		return httpmsg.StatusMethodNotAllowed, strings.Join(list, ", ")
	}
	return httpmsg.StatusUnknown, ""
}

// buildHandler selects and constructs the handler for this request,
// following the resource-based priority order (redirect, then CGI, then
// directory/autoindex, then static file) from
// original_source/src/core/Connection.cpp's processResponse.
func buildHandler(loc *config.Location, srv *config.Server, reqPath string, req *httpmsg.Request, sockFd int, version string) (handler.Handler, *handler.Exchange, httpmsg.Status) {
	ex := &handler.Exchange{Request: req, Version: version, SockFd: sockFd, URIPath: reqPath}

	if loc.HasRedirect {
		return &handler.Redirect{Code: httpmsg.Status(loc.RedirectCode), Target: loc.RedirectTarget}, ex, httpmsg.StatusUnknown
	}

	if loc.Root == "" {
		return nil, ex, httpmsg.StatusInternalServerError
	}

	if decoded := httpuri.DecodePath(reqPath); hasTraversal(decoded) {
		return nil, ex, httpmsg.StatusForbidden
	}

	if loc.CGI {
		fsPath, isDir := resolvePath(loc.Root, loc.Path, reqPath, loc.Index)
		if isDir {
			return nil, ex, httpmsg.StatusForbidden
		}
		ex.FSPath = fsPath
		return &handler.CGI{ScriptPath: fsPath, Root: loc.Root, Env: cgiEnviron(req, loc, srv, fsPath)}, ex, httpmsg.StatusUnknown
	}

	fsPath, isDir := resolvePath(loc.Root, loc.Path, reqPath, loc.Index)
	ex.FSPath = fsPath

	if isDir {
		if !loc.Autoindex {
			return nil, ex, httpmsg.StatusForbidden
		}
		display := reqPath
		if display == "" {
			display = "/"
		}
		if !strings.HasSuffix(display, "/") {
			display += "/"
		}
		return &handler.Autoindex{DirPath: fsPath, URIPath: display}, ex, httpmsg.StatusUnknown
	}

	return &handler.File{Path: fsPath}, ex, httpmsg.StatusUnknown
}

func hasTraversal(decodedPath string) bool {
	if decodedPath == ".." {
		return true
	}
	if strings.HasPrefix(decodedPath, "../") || strings.HasSuffix(decodedPath, "/..") {
		return true
	}
	return strings.Contains(decodedPath, "/../")
}

// cgiEnviron builds the CGI/1.1 environment variable set. Ported from
// original_source/src/handlers/CgiHandler.cpp's setupEnvironment.
func cgiEnviron(req *httpmsg.Request, loc *config.Location, srv *config.Server, scriptPath string) []string {
	uriPath, query := splitQuery(req.RawURI)

	pathInfo := ""
	if strings.HasPrefix(uriPath, scriptPath) {
		pathInfo = uriPath[len(scriptPath):]
		if pathInfo != "" && pathInfo[0] != '/' {
			pathInfo = "/" + pathInfo
		}
	}

	contentLength, ok := req.Headers.Get("Content-Length")
	if !ok {
		contentLength = strconv.Itoa(len(req.Body))
	}

	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"REQUEST_METHOD=" + req.RawMethod,
		"REQUEST_URI=" + req.RawURI,
		"SERVER_PROTOCOL=" + req.Version,
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_NAME=goserver",
		"SERVER_PORT=" + strconv.Itoa(srv.Port),
		"SCRIPT_NAME=" + scriptPath,
		"QUERY_STRING=" + query,
		"PATH_INFO=" + pathInfo,
		"CONTENT_LENGTH=" + contentLength,
	}
	if ct, ok := req.Headers.Get("Content-Type"); ok {
		env = append(env, "CONTENT_TYPE="+ct)
	}
	return env
}
