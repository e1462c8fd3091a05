// Package parse extracts case fields from detail-page HTML. Every field is
// read through an ordered list of named strategies; the first one that
// produces a value wins. The lists are data, so each source's fallback
// order is visible in one place and testable on canned markup.
package parse

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mergerwatch/casecrawl/internal/dateparse"
)

// TitleStrategy extracts the case title.
type TitleStrategy struct {
	Name string
	Fn   func(doc *goquery.Document) string
}

// DateStrategy extracts the notice date range as ISO dates.
type DateStrategy struct {
	Name string
	Fn   func(doc *goquery.Document) (start, end string, ok bool)
}

// AttachmentStrategy extracts the attachment link and display name. The URL
// is returned as found in the markup; the parser resolves it against the
// page URL.
type AttachmentStrategy struct {
	Name string
	Fn   func(doc *goquery.Document) (href, name string, ok bool)
}

// docExtensions are the attachment types the sites publish.
var docExtensions = []string{".doc", ".docx", ".pdf", ".xls", ".xlsx", ".zip", ".rar"}

// attachmentKeywords mark a link as the announcement form rather than
// boilerplate (logos, navigation icons).
var attachmentKeywords = []string{"经营者集中", "公示表", "附件"}

// MetaTitle reads <meta name=...> content.
func MetaTitle(metaName string) TitleStrategy {
	return TitleStrategy{
		Name: "meta:" + metaName,
		Fn: func(doc *goquery.Document) string {
			content, _ := doc.Find(`meta[name="` + metaName + `"]`).First().Attr("content")
			return strings.TrimSpace(content)
		},
	}
}

// ElementTitle reads the text of the first element matching the selector.
func ElementTitle(selector string) TitleStrategy {
	return TitleStrategy{
		Name: "element:" + selector,
		Fn: func(doc *goquery.Document) string {
			return strings.TrimSpace(doc.Find(selector).First().Text())
		},
	}
}

// TitleTag reads <title> and strips a site-name suffix at the first
// occurrence of sep ("案件名称_北京市市场监督管理局" → "案件名称").
func TitleTag(sep string) TitleStrategy {
	return TitleStrategy{
		Name: "title-tag:" + sep,
		Fn: func(doc *goquery.Document) string {
			title := strings.TrimSpace(doc.Find("title").First().Text())
			if title == "" {
				return ""
			}
			if i := strings.Index(title, sep); i > 0 {
				title = title[:i]
			}
			return strings.TrimSpace(title)
		},
	}
}

// ContainerDates collects the text of the first element matching selector
// (the whole body when selector is empty) and runs range extraction on it.
func ContainerDates(selector string) DateStrategy {
	name := "container:" + selector
	if selector == "" {
		name = "container:document"
	}
	return DateStrategy{
		Name: name,
		Fn: func(doc *goquery.Document) (string, string, bool) {
			var text string
			if selector == "" {
				text = doc.Find("body").Text()
			} else {
				sel := doc.Find(selector).First()
				if sel.Length() == 0 {
					return "", "", false
				}
				text = sel.Text()
			}
			return dateparse.ExtractRange(text)
		},
	}
}

// MetaDates runs range extraction on a meta tag's content. Chongqing puts
// the notice period inside <meta name="Description">.
func MetaDates(metaName string) DateStrategy {
	return DateStrategy{
		Name: "meta:" + metaName,
		Fn: func(doc *goquery.Document) (string, string, bool) {
			content, exists := doc.Find(`meta[name="` + metaName + `"]`).First().Attr("content")
			if !exists {
				return "", "", false
			}
			return dateparse.ExtractRange(content)
		},
	}
}

// LabelledLink finds a container whose text starts with "附件" and returns
// the first link inside it.
func LabelledLink(containerSelector string) AttachmentStrategy {
	return AttachmentStrategy{
		Name: "labelled:" + containerSelector,
		Fn: func(doc *goquery.Document) (string, string, bool) {
			var href, name string
			doc.Find(containerSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if !strings.Contains(strings.TrimSpace(s.Text()), "附件") {
					return true
				}
				link := s.Find("a[href]").First()
				if link.Length() == 0 {
					return true
				}
				href, _ = link.Attr("href")
				name = strings.TrimSpace(link.Text())
				return false
			})
			return href, name, href != ""
		},
	}
}

// ClassLink returns the first link matching the selector directly
// (guangdong tags its attachments with a dedicated class).
func ClassLink(selector string) AttachmentStrategy {
	return AttachmentStrategy{
		Name: "class:" + selector,
		Fn: func(doc *goquery.Document) (string, string, bool) {
			link := doc.Find(selector).First()
			if link.Length() == 0 {
				return "", "", false
			}
			href, _ := link.Attr("href")
			return href, strings.TrimSpace(link.Text()), href != ""
		},
	}
}

var hasFJRe = regexp.MustCompile(`hasFJ\s*=\s*'<a\s+href="([^"]+)"[^>]*>([^<]*)`)

// ScriptHasFJ pulls the attachment link out of the inline `hasFJ` script
// variable chongqing renders attachments with.
func ScriptHasFJ() AttachmentStrategy {
	return AttachmentStrategy{
		Name: "script:hasFJ",
		Fn: func(doc *goquery.Document) (string, string, bool) {
			var href, name string
			doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				m := hasFJRe.FindStringSubmatch(s.Text())
				if m == nil {
					return true
				}
				href = m[1]
				name = strings.TrimSpace(m[2])
				return false
			})
			return href, name, href != ""
		},
	}
}

// DocLinkScan walks every link under containerSelector (the whole document
// when empty) and returns the first one with a document extension. When
// requireKeyword is set the link text must also carry one of the
// announcement keywords.
func DocLinkScan(containerSelector string, requireKeyword bool) AttachmentStrategy {
	name := "scan:" + containerSelector
	if containerSelector == "" {
		name = "scan:document"
	}
	if !requireKeyword {
		name += ":any"
	}
	return AttachmentStrategy{
		Name: name,
		Fn: func(doc *goquery.Document) (string, string, bool) {
			root := doc.Selection
			if containerSelector != "" {
				root = doc.Find(containerSelector).First()
				if root.Length() == 0 {
					return "", "", false
				}
			}
			var href, linkName string
			root.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				h, _ := s.Attr("href")
				if !hasDocExtension(h) {
					return true
				}
				if requireKeyword && !hasAttachmentKeyword(s.Text()) {
					return true
				}
				href = h
				linkName = strings.TrimSpace(s.Text())
				return false
			})
			return href, linkName, href != ""
		},
	}
}

func hasDocExtension(href string) bool {
	h := strings.ToLower(href)
	for _, ext := range docExtensions {
		if strings.Contains(h, ext) {
			return true
		}
	}
	return false
}

func hasAttachmentKeyword(text string) bool {
	for _, kw := range attachmentKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// resolveURL makes href absolute against the page URL.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	// Site markup sometimes prefixes relative paths with "./".
	href = strings.TrimPrefix(href, "./")
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
