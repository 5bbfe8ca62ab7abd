package siteindex

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// KeywordClass marks elements whose text is indexed as a keyword of the
// nearest preceding heading.
const KeywordClass = "keyword"

// Outline is the searchable structure of one rendered page.
type Outline struct {
	// Title is the text of the first h1, if any.
	Title    string
	Headings map[string]string
	Keywords map[string]string
	// Order lists heading ids in document order.
	Order []string
}

// ExtractHeadings walks rendered HTML and collects headings up to maxLevel
// together with keyword elements. Headings without an id get one derived from
// their text.
func ExtractHeadings(r io.Reader, maxLevel int) (Outline, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Outline{}, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").Build()
	}

	out := Outline{Headings: map[string]string{}, Keywords: map[string]string{}}
	keywords := map[string][]string{}
	used := map[string]int{}
	current := ""

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				text := extractText(n)
				if level == 1 && out.Title == "" {
					out.Title = text
				}
				if level <= maxLevel && text != "" {
					id := getAttr(n, "id")
					if id == "" {
						id = uniqueSlug(text, used)
					}
					if _, dup := out.Headings[id]; !dup {
						out.Order = append(out.Order, id)
					}
					out.Headings[id] = text
					current = id
				}
				return
			}
			if hasClass(n, KeywordClass) {
				if text := extractText(n); text != "" && current != "" {
					keywords[current] = append(keywords[current], text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for id, kws := range keywords {
		out.Keywords[id] = strings.Join(kws, ", ")
	}
	return out, nil
}

// ExtractHeadingsFromBytes is ExtractHeadings over an in-memory document.
func ExtractHeadingsFromBytes(b []byte, maxLevel int) (Outline, error) {
	return ExtractHeadings(bytes.NewReader(b), maxLevel)
}

func headingLevel(tag string) int {
	if len(tag) != 2 || tag[0] != 'h' {
		return 0
	}
	level, err := strconv.Atoi(tag[1:])
	if err != nil || level < 1 || level > 6 {
		return 0
	}
	return level
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func extractText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Slug lowercases text and joins its letters and digits with hyphens.
func Slug(text string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			hyphen = false
		case !hyphen && b.Len() > 0:
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func uniqueSlug(text string, used map[string]int) string {
	base := Slug(text)
	if base == "" {
		base = "heading"
	}
	n := used[base]
	used[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
