package source

import (
	"github.com/rotisserie/eris"

	"github.com/mergerwatch/casecrawl/internal/pagetype"
	"github.com/mergerwatch/casecrawl/internal/parse"
)

// Rules returns the built-in rule table, one entry per known source. Each
// parser's strategy order mirrors where the site actually puts the field,
// most specific location first.
func Rules() []Rule {
	return []Rule{
		{
			Source:  pagetype.SAMR,
			Region:  pagetype.Region(pagetype.SAMR),
			BaseURL: "https://www.samr.gov.cn/fldes/ajgs/jyaj/index.html",
			Pagination: Pagination{
				Kind:     Pager,
				PagerURL: "https://www.samr.gov.cn/api-gateway/jpaas-publish-server/front/page/build/unit",
			},
			List: ListRule{ItemSelector: "div.content-3-left-text a"},
			Parser: &parse.Parser{
				Source: string(pagetype.SAMR),
				Title: []parse.TitleStrategy{
					parse.MetaTitle("ArticleTitle"),
					parse.ElementTitle("h1"),
					parse.TitleTag(" - "),
				},
				DateRange: []parse.DateStrategy{
					parse.ContainerDates("div.zt_xilan_07"),
					parse.ContainerDates("div.article-content"),
					parse.ContainerDates(""),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.DocLinkScan("div.article-content", true),
					parse.DocLinkScan("", true),
				},
			},
		},
		{
			Source:  pagetype.Beijing,
			Region:  pagetype.Region(pagetype.Beijing),
			BaseURL: "https://scjgj.beijing.gov.cn/ztzl/jyzjzajgs/jyzjzjyajgs/",
			Pagination: Pagination{
				Kind:       StaticIndex,
				FirstIndex: 1,
			},
			List: ListRule{
				ItemSelector: "div.public_list_team ul li",
				LinkSelector: "a",
				DateSelector: "span",
			},
			Parser: &parse.Parser{
				Source: string(pagetype.Beijing),
				Title: []parse.TitleStrategy{
					parse.ElementTitle("h2"),
					parse.TitleTag("_"),
				},
				DateRange: []parse.DateStrategy{
					parse.ContainerDates("div#div_zhengwen"),
					parse.ContainerDates(""),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.LabelledLink("div"),
					parse.DocLinkScan("", true),
				},
			},
		},
		{
			Source:  pagetype.Chongqing,
			Region:  pagetype.Region(pagetype.Chongqing),
			BaseURL: "https://scjgj.cq.gov.cn/zwxx_225/jyzjz/index.html",
			Pagination: Pagination{
				Kind:       StaticIndex,
				FirstIndex: 1,
			},
			List: ListRule{ItemSelector: "ul.gl-list li a"},
			Parser: &parse.Parser{
				Source: string(pagetype.Chongqing),
				Title: []parse.TitleStrategy{
					parse.MetaTitle("ArticleTitle"),
					parse.TitleTag(" - "),
				},
				DateRange: []parse.DateStrategy{
					parse.MetaDates("Description"),
					parse.ContainerDates("div.zwxl-article"),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.ScriptHasFJ(),
					parse.DocLinkScan("div.zwxl-article", true),
					parse.DocLinkScan("", true),
				},
			},
		},
		{
			Source:  pagetype.Shanghai,
			Region:  pagetype.Region(pagetype.Shanghai),
			BaseURL: "https://scjgj.sh.gov.cn/1571/",
			Pagination: Pagination{
				Kind:       StaticIndex,
				FirstIndex: 2,
			},
			List: ListRule{
				ItemSelector: "tr.table_list_tr1, tr.table_list_tr2",
				LinkSelector: "td.overflow a",
				DateSelector: "td:nth-child(4)",
			},
			Parser: &parse.Parser{
				Source: string(pagetype.Shanghai),
				Title: []parse.TitleStrategy{
					parse.MetaTitle("ArticleTitle"),
					parse.ElementTitle("div#ivs_title"),
					parse.ElementTitle("h1"),
				},
				DateRange: []parse.DateStrategy{
					parse.ContainerDates("div#ivs_content"),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.LabelledLink("td"),
					parse.DocLinkScan("", true),
				},
			},
		},
		{
			Source:     pagetype.Guangdong,
			Region:     pagetype.Region(pagetype.Guangdong),
			BaseURL:    "http://amr.gd.gov.cn/zwgk/gsgg/index.html",
			Pagination: Pagination{Kind: Flat},
			List: ListRule{
				ItemSelector: "div.list ul li",
				LinkSelector: "a",
				DateSelector: "span",
			},
			Parser: &parse.Parser{
				Source: string(pagetype.Guangdong),
				Title: []parse.TitleStrategy{
					parse.MetaTitle("ArticleTitle"),
					parse.ElementTitle("h1.article_t"),
				},
				DateRange: []parse.DateStrategy{
					parse.ContainerDates("div.article_con"),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.ClassLink("a.nfw-cms-attachment"),
					parse.DocLinkScan("", true),
				},
			},
		},
		{
			Source:  pagetype.Shaanxi,
			Region:  pagetype.Region(pagetype.Shaanxi),
			BaseURL: "https://snamr.shaanxi.gov.cn/xwzx/tzgg/",
			Pagination: Pagination{
				Kind:       StaticIndex,
				FirstIndex: 1,
			},
			List: ListRule{
				ItemSelector:    "div.news-list li",
				LinkSelector:    "a",
				DateSelector:    "span.time",
				StripDateSuffix: true,
			},
			Parser: &parse.Parser{
				Source: string(pagetype.Shaanxi),
				Title: []parse.TitleStrategy{
					parse.MetaTitle("ArticleTitle"),
					parse.ElementTitle("div.public-title-nav div.title"),
					parse.TitleTag("-"),
				},
				DateRange: []parse.DateStrategy{
					parse.ContainerDates("div.news-content"),
					parse.ContainerDates(""),
				},
				Attachment: []parse.AttachmentStrategy{
					parse.DocLinkScan("", true),
					parse.DocLinkScan("", false),
				},
			},
		},
	}
}

// RuleFor returns the rule for one source.
func RuleFor(s pagetype.Source) (Rule, error) {
	for _, r := range Rules() {
		if r.Source == s {
			return r, nil
		}
	}
	return Rule{}, eris.Errorf("source: no rule for %q", s)
}
