// Package pagetype resolves a URL to the source that published it.
package pagetype

import "strings"

// Source identifies one publishing site.
type Source string

const (
	SAMR      Source = "samr"
	Beijing   Source = "beijing"
	Chongqing Source = "chongqing"
	Shanghai  Source = "shanghai"
	Guangdong Source = "guangdong"
	Shaanxi   Source = "shaanxi"
	// Unresolved is returned for URLs outside the known domains.
	Unresolved Source = ""
)

// rule is one domain-substring match. Order matters: first match wins.
type rule struct {
	substr string
	source Source
	region string
}

var rules = []rule{
	{"samr.gov.cn", SAMR, "总局"},
	{"scjgj.beijing.gov.cn", Beijing, "北京"},
	{"scjgj.cq.gov.cn", Chongqing, "重庆"},
	{"scjgj.sh.gov.cn", Shanghai, "上海"},
	{"amr.gd.gov.cn", Guangdong, "广东"},
	{"snamr.shaanxi.gov.cn", Shaanxi, "陕西"},
}

// Resolve maps a URL to its source and human-readable region. It is pure and
// total: unknown URLs yield (Unresolved, "未知").
func Resolve(rawURL string) (Source, string) {
	for _, r := range rules {
		if strings.Contains(rawURL, r.substr) {
			return r.source, r.region
		}
	}
	return Unresolved, "未知"
}

// Region returns the region label for a known source, or "未知".
func Region(s Source) string {
	for _, r := range rules {
		if r.source == s {
			return r.region
		}
	}
	return "未知"
}

// ParseSource converts a source name into a Source.
func ParseSource(name string) (Source, bool) {
	for _, r := range rules {
		if string(r.source) == name {
			return r.source, true
		}
	}
	return Unresolved, false
}

// AllSources returns the known sources in resolution order.
func AllSources() []Source {
	out := make([]Source, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.source)
	}
	return out
}
