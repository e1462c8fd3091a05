package parse

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/model"
)

// ErrNoTitle marks a detail page where no title strategy produced a value.
// Without a title the record is unusable, so this is the only hard parse
// failure; missing dates or attachment just leave those fields empty.
var ErrNoTitle = eris.New("parse: no title found")

// Parser holds the per-field strategy lists for one source.
type Parser struct {
	Source     string
	Title      []TitleStrategy
	DateRange  []DateStrategy
	Attachment []AttachmentStrategy
}

// Parse extracts a Detail from doc. pageURL is the detail page's own URL,
// used to absolutize the attachment link and recorded as SourceURL.
func (p *Parser) Parse(doc *goquery.Document, pageURL string) (*model.Detail, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	d := &model.Detail{SourceURL: pageURL}

	for _, s := range p.Title {
		if title := s.Fn(doc); title != "" {
			d.Title = title
			break
		}
	}
	if d.Title == "" {
		return nil, eris.Wrapf(ErrNoTitle, "parse: %s: %s", p.Source, pageURL)
	}

	for _, s := range p.DateRange {
		if start, end, ok := s.Fn(doc); ok {
			d.StartDate = start
			d.EndDate = end
			break
		}
	}
	if d.StartDate == "" {
		zap.L().Warn("no notice date range on detail page",
			zap.String("source", p.Source),
			zap.String("url", pageURL),
		)
	}

	for _, s := range p.Attachment {
		if href, name, ok := s.Fn(doc); ok {
			d.AttachmentURL = resolveURL(base, href)
			d.AttachmentName = name
			break
		}
	}
	if d.AttachmentURL == "" {
		zap.L().Warn("no attachment link on detail page",
			zap.String("source", p.Source),
			zap.String("url", pageURL),
		)
	}

	return d, nil
}
