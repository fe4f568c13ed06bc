// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package feeds

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// feedDoc decodes RSS 2.0, RSS 1.0 (RDF) and Atom documents. Element names
// are matched without namespaces, so one struct covers all three.
type feedDoc struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`

	// RSS 1.0 places items beside the channel.
	Items []rssItem `xml:"item"`

	// Atom.
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// entry is a feed item reduced to the fields topics need.
type entry struct {
	headline string
	link     string
	summary  string
}

// parseFeed decodes r and returns the feed title and its entries in
// document order. Non-UTF-8 feeds are converted using their declared
// encoding.
func parseFeed(r io.Reader) (string, []entry, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc feedDoc
	if err := dec.Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("parsing feed: %w", err)
	}

	title := strings.TrimSpace(doc.Channel.Title)
	if title == "" {
		title = strings.TrimSpace(doc.Title)
	}

	var entries []entry
	items := append(doc.Channel.Items, doc.Items...)
	for _, it := range items {
		link := strings.TrimSpace(it.Link)
		if link == "" && strings.HasPrefix(strings.TrimSpace(it.GUID), "http") {
			link = strings.TrimSpace(it.GUID)
		}
		entries = append(entries, entry{
			headline: collapse(it.Title),
			link:     link,
			summary:  stripHTML(it.Description),
		})
	}
	for _, e := range doc.Entries {
		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}
		entries = append(entries, entry{
			headline: collapse(e.Title),
			link:     atomHref(e.Links),
			summary:  stripHTML(summary),
		})
	}

	return title, entries, nil
}

// atomHref prefers the alternate link, which is also the default relation.
func atomHref(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

// stripHTML returns the text content of an HTML fragment with whitespace
// collapsed. Feed descriptions are frequently escaped HTML.
func stripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
