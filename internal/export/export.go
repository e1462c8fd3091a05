// Package export writes the case table to an xlsx workbook. The workbook
// is merged, not regenerated: rows already in the file keep any manual
// edits, and cells are only filled, never blanked. Region is the exception
// and always tracks the store.
package export

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/model"
)

const sheetName = "案件"

var columns = []string{"案件名称", "公示开始日期", "公示结束日期", "来源网址", "附件路径", "地区", "创建日期"}

// Column indices into a workbook row.
const (
	colName = iota
	colStart
	colEnd
	colSourceURL
	colAttachment
	colRegion
	colCreatedAt
)

var colWidths = []float64{60, 14, 14, 50, 40, 10, 20}

// Exporter merges cases into one xlsx artifact.
type Exporter struct {
	path string
}

// New creates an exporter targeting path.
func New(path string) *Exporter {
	return &Exporter{path: path}
}

// Write merges the given cases into the workbook and saves it. A missing
// workbook is created fresh.
func (e *Exporter) Write(cases []model.Case) error {
	rows, index, err := e.readExisting()
	if err != nil {
		return err
	}

	for _, c := range cases {
		if r, ok := index[c.CaseName]; ok {
			mergeRow(r, c)
			continue
		}
		r := caseRow(c)
		rows = append(rows, r)
		index[c.CaseName] = r
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	for i, w := range colWidths {
		sheet.SetColWidth(i, i, w)
	}

	if err := f.Save(e.path); err != nil {
		return eris.Wrapf(err, "export: save %s", e.path)
	}
	zap.L().Info("workbook written",
		zap.String("path", e.path),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// readExisting loads the current workbook rows keyed by case name. A
// missing file is not an error.
func (e *Exporter) readExisting() ([][]string, map[string][]string, error) {
	index := make(map[string][]string)

	if _, err := os.Stat(e.path); os.IsNotExist(err) {
		return nil, index, nil
	}

	f, err := xlsx.OpenFile(e.path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "export: open %s", e.path)
	}
	if len(f.Sheets) == 0 {
		return nil, index, nil
	}

	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		r := make([]string, len(columns))
		for j := 0; j < len(columns) && j < len(row.Cells); j++ {
			r[j] = row.Cells[j].String()
		}
		if r[colName] == "" {
			continue
		}
		rows = append(rows, r)
		index[r[colName]] = r
	}
	return rows, index, nil
}

// mergeRow fills empty cells from the stored case; region always tracks
// the store.
func mergeRow(r []string, c model.Case) {
	fill := func(col int, v string) {
		if r[col] == "" && v != "" {
			r[col] = v
		}
	}
	fill(colStart, model.StrVal(c.NoticeStartDate))
	fill(colEnd, model.StrVal(c.NoticeEndDate))
	fill(colSourceURL, model.StrVal(c.SourceURL))
	fill(colAttachment, model.StrVal(c.AttachmentPath))
	fill(colCreatedAt, formatCreatedAt(c.CreatedAt))
	if region := model.StrVal(c.Region); region != "" {
		r[colRegion] = region
	}
}

func caseRow(c model.Case) []string {
	r := make([]string, len(columns))
	r[colName] = c.CaseName
	r[colStart] = model.StrVal(c.NoticeStartDate)
	r[colEnd] = model.StrVal(c.NoticeEndDate)
	r[colSourceURL] = model.StrVal(c.SourceURL)
	r[colAttachment] = model.StrVal(c.AttachmentPath)
	r[colRegion] = model.StrVal(c.Region)
	r[colCreatedAt] = formatCreatedAt(c.CreatedAt)
	return r
}

func formatCreatedAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
