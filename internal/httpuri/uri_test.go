package httpuri

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantValid  bool
		wantPath   string
		wantQuery  string
		wantFrag   string
		wantScheme string
		wantHost   string
		wantPort   int
	}{
		{"simple absolute path", "/path/to/resource", true, "/path/to/resource", "", "", "", "", -1},
		{"path with query", "/search?q=hello&page=1", true, "/search", "q=hello&page=1", "", "", "", -1},
		{"path with fragment", "/page#section1", true, "/page", "", "section1", "", "", -1},
		{"path with query and fragment", "/page?id=5#top", true, "/page", "id=5", "top", "", "", -1},
		{"full url", "http://example.com:8080/path?query=1#frag", true, "/path", "query=1", "frag", "http", "example.com", 8080},
		{"url without port", "https://example.com/resource", true, "/resource", "", "", "https", "example.com", -1},
		{"empty url", "", false, "", "", "", "", "", -1},
		{"root path", "/", true, "/", "", "", "", "", -1},
		{"empty port string", "http://example.com:/path", false, "", "", "", "", "", -1},
		{"port out of range", "http://example.com:70000/path", false, "", "", "", "", "", -1},
		{"non numeric port", "http://example.com:abc/path", false, "", "", "", "", "", -1},
		{"authority without path", "http://example.com", true, "/", "", "", "http", "example.com", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Parse(tt.in)
			if u.Valid() != tt.wantValid {
				t.Fatalf("Valid() = %v, want %v", u.Valid(), tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			if u.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", u.Path, tt.wantPath)
			}
			if u.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", u.Query, tt.wantQuery)
			}
			if u.Fragment != tt.wantFrag {
				t.Errorf("Fragment = %q, want %q", u.Fragment, tt.wantFrag)
			}
			if u.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %q, want %q", u.Scheme, tt.wantScheme)
			}
			if u.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", u.Host, tt.wantHost)
			}
			if u.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", u.Port, tt.wantPort)
			}
		})
	}
}

func TestHasPathTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b/c", false},
		{"..", true},
		{"../etc/passwd", true},
		{"/a/..", true},
		{"/a/../b", true},
		{"/%2e%2e/etc/passwd", true},
		{"/a/b..c", false},
	}
	for _, tt := range tests {
		u := Parse(tt.path)
		if got := u.HasPathTraversal(); got != tt.want {
			t.Errorf("HasPathTraversal(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/a/b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/a/../../b", "/b"},
		{"/", "/"},
		{"/a/b/", "/a/b/"},
		{"", "/"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []string{"hello world", "a/b?c=d", "100%", "", "日本語", "a+b"}
	for _, s := range samples {
		if got := DecodePath(Encode(s)); got != s {
			t.Errorf("DecodePath(Encode(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestQueryPlusDecodesToSpace(t *testing.T) {
	if got := DecodeQuery("a+b"); got != "a b" {
		t.Errorf("DecodeQuery(a+b) = %q, want %q", got, "a b")
	}
	if got := DecodePath("a+b"); got != "a+b" {
		t.Errorf("DecodePath(a+b) = %q, want %q", got, "a+b")
	}
}
