package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// kGlobalContext is the error-prefix sentinel used while validating
// directives that sit outside any server/location block, mirroring
// original_source/Config.cpp's kGlobalContext constant.
const kGlobalContext = "global"

var validRedirectCodes = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// translate walks the parsed top-level directives and block tree and
// produces a validated Tables. Ported from original_source/Config.cpp's
// getServers(), which processes root_.directives as global error_page/
// max_request_body before walking root_.sub_blocks into Server objects.
func translate(directives []Directive, blocks []Block) (*Tables, error) {
	t := &Tables{ErrorPages: map[int]string{}}

	for _, d := range directives {
		switch d.Name {
		case "error_page":
			if err := parseErrorPages(kGlobalContext, d, t.ErrorPages); err != nil {
				return nil, err
			}
		case "max_request_body":
			v, err := parsePositiveNumber(kGlobalContext, d)
			if err != nil {
				return nil, err
			}
			t.MaxRequestBody = v
		default:
			return nil, unrecognizedDirective(kGlobalContext, d.Name)
		}
	}

	seen := map[string]bool{} // host:port uniqueness

	for i, b := range blocks {
		if b.Type != "server" {
			return nil, errors.Errorf("top level: unrecognized block %q, expected \"server\"", b.Type)
		}
		ctx := serverContext(i)

		srv, err := translateServer(b, ctx)
		if err != nil {
			return nil, err
		}

		key := srv.Host + ":" + strconv.Itoa(srv.Port)
		if seen[key] {
			return nil, errors.Errorf("%s: duplicate listen %q", ctx, key)
		}
		seen[key] = true

		t.Servers = append(t.Servers, *srv)
	}

	if len(t.Servers) == 0 {
		return nil, errors.New("config: no server blocks defined")
	}

	return t, nil
}

func serverContext(i int) string { return "server[" + strconv.Itoa(i) + "]" }

func locationContext(serverCtx, path string) string {
	return serverCtx + " location \"" + path + "\""
}

func translateServer(b Block, ctx string) (*Server, error) {
	srv := &Server{Autoindex: false, ErrorPages: map[int]string{}}
	listenSet := false

	for _, d := range b.Directives {
		switch d.Name {
		case "listen":
			if err := requireArgsEqual(ctx, d, 1); err != nil {
				return nil, err
			}
			host, port, err := parseListen(d.Args[0])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: listen", ctx)
			}
			srv.Host, srv.Port = host, port
			listenSet = true
		case "server_name":
			if err := requireArgsAtLeast(ctx, d, 1); err != nil {
				return nil, err
			}
			srv.ServerNames = append(srv.ServerNames, d.Args...)
		case "root":
			if err := requireArgsEqual(ctx, d, 1); err != nil {
				return nil, err
			}
			srv.Root = d.Args[0]
		case "index":
			if err := requireArgsAtLeast(ctx, d, 1); err != nil {
				return nil, err
			}
			srv.Index = append(srv.Index, d.Args...)
		case "autoindex":
			v, err := parseBoolean(ctx, d)
			if err != nil {
				return nil, err
			}
			srv.Autoindex = v
		case "allow_methods":
			if err := requireArgsAtLeast(ctx, d, 1); err != nil {
				return nil, err
			}
			srv.AllowedMethods = append(srv.AllowedMethods, d.Args...)
		case "error_page":
			if err := parseErrorPages(ctx, d, srv.ErrorPages); err != nil {
				return nil, err
			}
		case "max_request_body":
			v, err := parsePositiveNumber(ctx, d)
			if err != nil {
				return nil, err
			}
			srv.MaxRequestBody = v
		default:
			return nil, unrecognizedDirective(ctx, d.Name)
		}
	}

	if !listenSet {
		return nil, errors.Errorf("%s: missing required \"listen\" directive", ctx)
	}

	for _, sub := range b.SubBlocks {
		if sub.Type != "location" {
			return nil, errors.Errorf("%s: unrecognized block %q, expected \"location\"", ctx, sub.Type)
		}
		if sub.Param == "" {
			return nil, errors.Errorf("%s: \"location\" block requires a path parameter", ctx)
		}
		loc, err := translateLocation(sub, locationContext(ctx, sub.Param))
		if err != nil {
			return nil, err
		}
		srv.Locations = append(srv.Locations, *loc)
	}

	return srv, nil
}

func translateLocation(b Block, ctx string) (*Location, error) {
	loc := &Location{Path: b.Param, ErrorPages: map[int]string{}}

	for _, d := range b.Directives {
		switch d.Name {
		case "root":
			if err := requireArgsEqual(ctx, d, 1); err != nil {
				return nil, err
			}
			loc.Root = d.Args[0]
		case "index":
			if err := requireArgsAtLeast(ctx, d, 1); err != nil {
				return nil, err
			}
			loc.Index = append(loc.Index, d.Args...)
		case "autoindex":
			v, err := parseBoolean(ctx, d)
			if err != nil {
				return nil, err
			}
			loc.Autoindex = v
		case "allow_methods":
			if err := requireArgsAtLeast(ctx, d, 1); err != nil {
				return nil, err
			}
			loc.AllowedMethods = append(loc.AllowedMethods, d.Args...)
		case "error_page":
			if err := parseErrorPages(ctx, d, loc.ErrorPages); err != nil {
				return nil, err
			}
		case "max_request_body":
			v, err := parsePositiveNumber(ctx, d)
			if err != nil {
				return nil, err
			}
			loc.MaxRequestBody = v
		case "redirect":
			if err := requireArgsEqual(ctx, d, 2); err != nil {
				return nil, err
			}
			code, err := strconv.Atoi(d.Args[0])
			if err != nil || !validRedirectCodes[code] {
				return nil, errors.Errorf("%s: redirect: %q is not a valid redirect status code", ctx, d.Args[0])
			}
			loc.RedirectCode = code
			loc.RedirectTarget = d.Args[1]
			loc.HasRedirect = true
		case "cgi":
			v, err := parseBoolean(ctx, d)
			if err != nil {
				return nil, err
			}
			loc.CGI = v
		default:
			return nil, unrecognizedDirective(ctx, d.Name)
		}
	}

	if len(b.SubBlocks) > 0 {
		return nil, errors.Errorf("%s: nested blocks are not allowed inside \"location\"", ctx)
	}

	return loc, nil
}

func unrecognizedDirective(ctx, name string) error {
	return errors.Errorf("%s: unrecognized directive %q", ctx, name)
}

func requireArgsEqual(ctx string, d Directive, n int) error {
	if len(d.Args) != n {
		return errors.Errorf("%s: directive %q requires exactly %d argument(s), got %d", ctx, d.Name, n, len(d.Args))
	}
	return nil
}

func requireArgsAtLeast(ctx string, d Directive, n int) error {
	if len(d.Args) < n {
		return errors.Errorf("%s: directive %q requires at least %d argument(s), got %d", ctx, d.Name, n, len(d.Args))
	}
	return nil
}

func parseBoolean(ctx string, d Directive) (bool, error) {
	if err := requireArgsEqual(ctx, d, 1); err != nil {
		return false, err
	}
	switch d.Args[0] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, errors.Errorf("%s: directive %q expects \"on\" or \"off\", got %q", ctx, d.Name, d.Args[0])
	}
}

func parsePositiveNumber(ctx string, d Directive) (int64, error) {
	if err := requireArgsEqual(ctx, d, 1); err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(d.Args[0], 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Errorf("%s: directive %q requires a positive integer, got %q", ctx, d.Name, d.Args[0])
	}
	return v, nil
}

// parseErrorPages implements "error_page code [code...] /path;" - at
// least one code plus a final URI argument, every code restricted to
// the 4xx/5xx ranges. Ported from original_source/Config.cpp's
// error_page handling.
func parseErrorPages(ctx string, d Directive, dst map[int]string) error {
	if len(d.Args) < 2 {
		return errors.Errorf("%s: error_page requires at least one status code and a target", ctx)
	}
	uri := d.Args[len(d.Args)-1]
	for _, a := range d.Args[:len(d.Args)-1] {
		code, err := strconv.Atoi(a)
		if err != nil || code < 400 || code > 599 {
			return errors.Errorf("%s: error_page: %q is not a valid 4xx/5xx status code", ctx, a)
		}
		dst[code] = uri
	}
	return nil
}

// parseListen parses "host:port" or a bare "port", defaulting the host
// to the any-address when only a port is given. Ported from
// original_source/Config.cpp's listen-directive parsing.
func parseListen(s string) (string, int, error) {
	if idx := strings.LastIndexByte(s, ':'); idx != -1 {
		host := s[:idx]
		port, err := strconv.Atoi(s[idx+1:])
		if err != nil || port < 1 || port > 65535 {
			return "", 0, errors.Errorf("invalid port in %q", s)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		return host, port, nil
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, errors.Errorf("invalid listen value %q", s)
	}
	return "0.0.0.0", port, nil
}
