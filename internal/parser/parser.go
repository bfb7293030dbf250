package parser

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind classifies a resolved listing link
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Link is one usable anchor from a listing page
type Link struct {
	URL       string
	Kind      Kind
	Name      string // raw last path segment, still URL-encoded
	Extension string // lower-cased, without the dot
}

// ExtractLinks returns every anchor href in document order together with the
// page title. It tokenizes instead of building a tree so broken markup still
// yields whatever anchors it has.
func ExtractLinks(body []byte) ([]string, string) {
	z := html.NewTokenizer(bytes.NewReader(body))
	hrefs := make([]string, 0)
	title := ""
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return hrefs, strings.TrimSpace(title)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.A:
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						hrefs = append(hrefs, strings.TrimSpace(string(val)))
						break
					}
				}
			case atom.Title:
				inTitle = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Title {
				inTitle = false
			}
		case html.TextToken:
			if inTitle && title == "" {
				title = string(z.Text())
			}
		}
	}
}

// Resolve turns an href found on listingURL into a classified absolute link.
// Self and parent references, fragments, sort-order query links and non-HTTP
// schemes are dropped. Root-relative hrefs resolve against the listing's
// origin; any other relative href is appended to the listing URL.
func Resolve(listingURL, href string) (Link, bool) {
	switch href {
	case "", ".", "..", "../", "./":
		return Link{}, false
	}
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "?") {
		return Link{}, false
	}

	var abs string
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		abs = href
	case hasScheme(lower):
		return Link{}, false
	case strings.HasPrefix(href, "//"), strings.HasPrefix(href, "/"):
		base, err := url.Parse(listingURL)
		if err != nil || base.Host == "" {
			return Link{}, false
		}
		if strings.HasPrefix(href, "//") {
			abs = base.Scheme + ":" + href
		} else {
			abs = base.Scheme + "://" + base.Host + href
		}
	default:
		abs = strings.TrimRight(listingURL, "/") + "/" + strings.TrimLeft(href, "/")
	}

	p := abs
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	kind := KindFile
	if strings.HasSuffix(p, "/") {
		kind = KindDirectory
	}

	name := lastSegment(p)
	if name == "" {
		return Link{}, false
	}

	link := Link{URL: abs, Kind: kind, Name: name}
	if kind == KindFile {
		link.Extension = strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	}
	return link, true
}

// Below reports whether child is strictly inside the directory parent
func Below(parent, child string) bool {
	prefix := strings.TrimRight(parent, "/") + "/"
	return strings.HasPrefix(child, prefix) && len(strings.TrimRight(child, "/")) > len(strings.TrimRight(parent, "/"))
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// hasScheme reports a leading "scheme:" per RFC 3986
func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		case c == ':' && i > 0:
			return true
		default:
			return false
		}
	}
	return false
}
