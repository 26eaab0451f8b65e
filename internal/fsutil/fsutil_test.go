package fsutil

import "testing"

func TestGuessMIME(t *testing.T) {
	tests := map[string]string{
		"index.html":        "text/html; charset=utf-8",
		"notes.txt":         "text/plain; charset=utf-8",
		"style.css":         "text/css",
		"app.js":             "application/javascript",
		"photo.JPG":         "image/jpeg",
		"photo.jpeg":        "image/jpeg",
		"icon.png":          "image/png",
		"anim.gif":          "image/gif",
		"data.bin":          "application/octet-stream",
		"no_extension":      "application/octet-stream",
	}
	for path, want := range tests {
		if got := GuessMIME(path); got != want {
			t.Errorf("GuessMIME(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseRangeFull(t *testing.T) {
	start, end, err := ParseRange("bytes=0-499", 1000)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if start != 0 || end != 499 {
		t.Errorf("got [%d,%d], want [0,499]", start, end)
	}
}

func TestParseRangeOpenEnded(t *testing.T) {
	start, end, err := ParseRange("bytes=500-", 1000)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if start != 500 || end != 999 {
		t.Errorf("got [%d,%d], want [500,999]", start, end)
	}
}

func TestParseRangeSuffix(t *testing.T) {
	start, end, err := ParseRange("bytes=-100", 1000)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if start != 900 || end != 999 {
		t.Errorf("got [%d,%d], want [900,999]", start, end)
	}
}

func TestParseRangeClampsEnd(t *testing.T) {
	start, end, err := ParseRange("bytes=0-99999", 1000)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if start != 0 || end != 999 {
		t.Errorf("got [%d,%d], want [0,999]", start, end)
	}
}

func TestParseRangeInvalid(t *testing.T) {
	cases := []string{"", "bytes=", "bytes=abc-def", "bytes=500-100", "nonsense", "bytes=2000-3000"}
	for _, c := range cases {
		if _, _, err := ParseRange(c, 1000); err == nil {
			t.Errorf("ParseRange(%q) expected error, got none", c)
		}
	}
}
