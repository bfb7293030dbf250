package parser

import (
	"testing"
)

const apacheListing = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html>
 <head>
  <title>Index of /pub/images</title>
 </head>
 <body>
<h1>Index of /pub/images</h1>
<pre><img src="/icons/blank.gif" alt="Icon "> <a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a>
<hr><a href="/pub/">Parent Directory</a>
<a href="a.gif">a.gif</a>    2020-01-01 10:00  1.2K
<a href="b.txt">b.txt</a>    2020-01-01 10:00  300
<A HREF='sub/'>sub/</A>
<a href=../>up</a>
<a href="mailto:root@example.com">mail</a>
</pre></body></html>`

func TestExtractLinks(t *testing.T) {
	links, title := ExtractLinks([]byte(apacheListing))

	if title != "Index of /pub/images" {
		t.Errorf("Expected title 'Index of /pub/images', got %s", title)
	}

	want := []string{"?C=N;O=D", "?C=M;O=A", "/pub/", "a.gif", "b.txt", "sub/", "../", "mailto:root@example.com"}
	if len(links) != len(want) {
		t.Fatalf("Expected %d links, got %d: %v", len(want), len(links), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d: expected %q, got %q", i, want[i], links[i])
		}
	}
}

func TestExtractLinksEmptyHTML(t *testing.T) {
	links, title := ExtractLinks(nil)

	if len(links) != 0 {
		t.Errorf("Expected 0 links, got %d", len(links))
	}

	if title != "" {
		t.Errorf("Expected empty title, got %s", title)
	}
}

func TestExtractLinksBrokenMarkup(t *testing.T) {
	links, _ := ExtractLinks([]byte(`<a href="x.zip">x<a href="y.zip"><div <a href=z.zip>`))

	if len(links) < 2 || links[0] != "x.zip" || links[1] != "y.zip" {
		t.Errorf("Expected x.zip and y.zip from broken markup, got %v", links)
	}
}

func TestExtractLinksUnescapesEntities(t *testing.T) {
	links, _ := ExtractLinks([]byte(`<a href="Tom&amp;Jerry.avi">t</a>`))

	if len(links) != 1 || links[0] != "Tom&Jerry.avi" {
		t.Errorf("Expected unescaped href, got %v", links)
	}
}

func TestResolve(t *testing.T) {
	base := "http://example.com/pub/images/"

	tests := []struct {
		href string
		ok   bool
		url  string
		kind Kind
		name string
		ext  string
	}{
		{".", false, "", 0, "", ""},
		{"..", false, "", 0, "", ""},
		{"../", false, "", 0, "", ""},
		{"#top", false, "", 0, "", ""},
		{"?C=N;O=D", false, "", 0, "", ""},
		{"mailto:root@example.com", false, "", 0, "", ""},
		{"javascript:void(0)", false, "", 0, "", ""},
		{"a.GIF", true, "http://example.com/pub/images/a.GIF", KindFile, "a.GIF", "gif"},
		{"sub/", true, "http://example.com/pub/images/sub/", KindDirectory, "sub", ""},
		{"/abs.txt", true, "http://example.com/abs.txt", KindFile, "abs.txt", "txt"},
		{"/pub/", true, "http://example.com/pub/", KindDirectory, "pub", ""},
		{"//cdn.example.com/z.zip", true, "http://cdn.example.com/z.zip", KindFile, "z.zip", "zip"},
		{"https://cdn.example.com/x/y.tar.gz", true, "https://cdn.example.com/x/y.tar.gz", KindFile, "y.tar.gz", "gz"},
		{"my%20file.mp3", true, "http://example.com/pub/images/my%20file.mp3", KindFile, "my%20file.mp3", "mp3"},
		{"README", true, "http://example.com/pub/images/README", KindFile, "README", ""},
		{"file.php?id=3", true, "http://example.com/pub/images/file.php?id=3", KindFile, "file.php", "php"},
	}

	for _, tt := range tests {
		link, ok := Resolve(base, tt.href)
		if ok != tt.ok {
			t.Errorf("Resolve(%q): expected ok=%v, got %v", tt.href, tt.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if link.URL != tt.url {
			t.Errorf("Resolve(%q): expected URL %q, got %q", tt.href, tt.url, link.URL)
		}
		if link.Kind != tt.kind {
			t.Errorf("Resolve(%q): expected kind %v, got %v", tt.href, tt.kind, link.Kind)
		}
		if link.Name != tt.name {
			t.Errorf("Resolve(%q): expected name %q, got %q", tt.href, tt.name, link.Name)
		}
		if link.Extension != tt.ext {
			t.Errorf("Resolve(%q): expected ext %q, got %q", tt.href, tt.ext, link.Extension)
		}
	}
}

func TestResolveBaseWithoutTrailingSlash(t *testing.T) {
	link, ok := Resolve("http://example.com/pub", "a.gif")
	if !ok || link.URL != "http://example.com/pub/a.gif" {
		t.Errorf("Expected joined URL, got %q (ok=%v)", link.URL, ok)
	}
}

func TestBelow(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"http://h/pub/", "http://h/pub/sub/", true},
		{"http://h/pub", "http://h/pub/sub/", true},
		{"http://h/pub/", "http://h/pub/", false},
		{"http://h/pub/images/", "http://h/pub/", false},
		{"http://h/pub/", "http://h/public/", false},
		{"http://h/pub/", "http://other/pub/sub/", false},
	}

	for _, tt := range tests {
		if got := Below(tt.parent, tt.child); got != tt.want {
			t.Errorf("Below(%q, %q): expected %v, got %v", tt.parent, tt.child, tt.want, got)
		}
	}
}
