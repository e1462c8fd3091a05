package pagetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		source Source
		region string
	}{
		{"samr detail page", "https://www.samr.gov.cn/fldes/ajgs/jyaj/art/2025/abc.html", SAMR, "总局"},
		{"beijing listing", "https://scjgj.beijing.gov.cn/ztzl/jyzjzajgs/jyzjzjyajgs/", Beijing, "北京"},
		{"chongqing", "https://scjgj.cq.gov.cn/zwxx_225/gsgg/2025/page.html", Chongqing, "重庆"},
		{"shanghai", "https://scjgj.sh.gov.cn/1064/index.html", Shanghai, "上海"},
		{"guangdong", "http://amr.gd.gov.cn/zwgk/gsgg/index.html", Guangdong, "广东"},
		{"shaanxi", "https://snamr.shaanxi.gov.cn/xwzx/tzgg/index.html", Shaanxi, "陕西"},
		{"unknown domain", "https://example.com/page", Unresolved, "未知"},
		{"empty", "", Unresolved, "未知"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, region := Resolve(tt.url)
			assert.Equal(t, tt.source, src)
			assert.Equal(t, tt.region, region)
		})
	}
}

func TestResolve_Total(t *testing.T) {
	// Resolve never panics and always returns a value, whatever the input.
	for _, u := range []string{"not a url", "://", "samr.gov.cn", "https://samr.gov.cn.evil.example"} {
		src, region := Resolve(u)
		assert.NotEmpty(t, region)
		_ = src
	}
}

func TestRegion(t *testing.T) {
	assert.Equal(t, "上海", Region(Shanghai))
	assert.Equal(t, "未知", Region(Unresolved))
}

func TestParseSource(t *testing.T) {
	src, ok := ParseSource("beijing")
	assert.True(t, ok)
	assert.Equal(t, Beijing, src)

	_, ok = ParseSource("tianjin")
	assert.False(t, ok)
}

func TestAllSources(t *testing.T) {
	all := AllSources()
	assert.Len(t, all, 6)
	assert.Equal(t, SAMR, all[0])
}
