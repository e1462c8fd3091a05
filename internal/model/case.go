// Package model holds the shared domain types for the crawl pipeline.
package model

import "time"

// Case is one concentration-review notice as persisted. Pointer fields are
// nullable in storage: a listing-only sighting knows the name and source
// URL but may lack dates until the detail page is parsed.
type Case struct {
	ID              int64      `json:"id"`
	CaseName        string     `json:"case_name"`
	NoticeStartDate *string    `json:"notice_start_date"`
	NoticeEndDate   *string    `json:"notice_end_date"`
	SourceURL       *string    `json:"source_url"`
	Region          *string    `json:"region"`
	AttachmentPath  *string    `json:"attachment_path"`
	CreatedAt       *time.Time `json:"created_at"`
}

// CaseLink is one entry on a listing page: the link into the detail page
// plus whatever the listing itself shows.
type CaseLink struct {
	Title    string
	URL      string
	ListDate string
}

// Detail is the parsed content of one detail page. Dates are ISO strings
// (YYYY-MM-DD); empty means the page did not yield the field.
type Detail struct {
	Title          string
	StartDate      string
	EndDate        string
	AttachmentURL  string
	AttachmentName string
	SourceURL      string
}

// RunReport summarizes one source's crawl run.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Region    string    `json:"region"`
	Pages     int       `json:"pages"`
	Seen      int       `json:"seen"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// StrPtr returns a pointer to s, or nil when s is empty. Storage treats
// empty strings and NULL identically; NULL keeps the monotonic-fill rules
// simple.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal dereferences p, returning "" for nil.
func StrVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
