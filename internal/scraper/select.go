package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var busyTextRegex = regexp.MustCompile(`(?i)(\d+)%\s*busy`)

// SelectLabel picks the most informative busyness label. A label mentioning
// "usually" wins outright; otherwise the first "currently" label, then the
// first label containing "% busy". The labels are scanned once.
func SelectLabel(labels []string) (string, bool) {
	var currently, busy string
	haveCurrently, haveBusy := false, false

	for _, label := range labels {
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "usually"):
			return label, true
		case strings.Contains(lower, "currently"):
			if !haveCurrently {
				currently, haveCurrently = label, true
			}
		case strings.Contains(lower, "% busy"):
			if !haveBusy {
				busy, haveBusy = label, true
			}
		}
	}

	if haveCurrently {
		return currently, true
	}
	if haveBusy {
		return busy, true
	}
	return "", false
}

// FindBusyText looks for the first "N% busy" phrase in a page. The visible
// text is searched first, then the raw markup, which also covers attribute
// values. Text nodes are joined with a space so digits from neighbouring
// elements never run together.
func FindBusyText(content string) (string, int, bool) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
		doc.Find("script, style, noscript").Remove()
		if raw, n, ok := matchBusy(visibleText(doc.Selection)); ok {
			return raw, n, true
		}
	}
	return matchBusy(content)
}

func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func matchBusy(text string) (string, int, bool) {
	m := busyTextRegex.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}
	return m[0], n, true
}
