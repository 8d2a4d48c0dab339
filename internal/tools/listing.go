package tools

import (
	"net/url"
	"strconv"
	"strings"
)

// View selects how much of each tool a listing includes.
type View string

const (
	ViewBrief View = "brief"
	ViewFull  View = "full"
)

// Listing limits.
const (
	DefaultLimit           = 100
	MaxLimit               = 200
	ShortDescriptionLength = 180
)

// ListOptions controls a listing page.
type ListOptions struct {
	View   View
	Query  string
	Limit  int
	Cursor string
}

// ParseListOptions reads view, q, limit and cursor. An unparsable limit
// falls back to DefaultLimit; out of range values are clamped.
func ParseListOptions(values url.Values) ListOptions {
	opts := ListOptions{
		View:   ViewBrief,
		Query:  strings.TrimSpace(values.Get("q")),
		Limit:  DefaultLimit,
		Cursor: values.Get("cursor"),
	}
	if strings.EqualFold(values.Get("view"), string(ViewFull)) {
		opts.View = ViewFull
	}
	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			opts.Limit = n
		}
	}
	opts.Limit = clampLimit(opts.Limit)
	return opts
}

func clampLimit(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// BriefEntry is a tool in a brief listing.
type BriefEntry struct {
	Name             string `json:"name"`
	DescriptionShort string `json:"descriptionShort"`
}

// FullEntry is a tool in a full listing.
type FullEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Page is one page of a listing. Total counts the entries in this page.
type Page struct {
	OK         bool    `json:"ok"`
	View       View    `json:"view"`
	Total      int     `json:"total"`
	NextCursor *string `json:"nextCursor"`
	Tools      []any   `json:"tools"`
}

// List returns a page of tools ordered by name. Query matches name or
// description case-insensitively; Cursor skips names up to and including it.
func (r *Registry) List(opts ListOptions) *Page {
	limit := clampLimit(opts.Limit)
	if opts.Limit == 0 {
		limit = DefaultLimit
	}
	q := strings.ToLower(opts.Query)

	matched := make([]Tool, 0, len(r.sorted))
	for _, t := range r.sorted {
		if q != "" && !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		if opts.Cursor != "" && t.Name <= opts.Cursor {
			continue
		}
		matched = append(matched, t)
	}

	page := matched
	if len(page) > limit {
		page = page[:limit]
	}

	view := ViewBrief
	if opts.View == ViewFull {
		view = ViewFull
	}

	out := &Page{OK: true, View: view, Total: len(page), Tools: make([]any, 0, len(page))}
	for _, t := range page {
		if view == ViewFull {
			out.Tools = append(out.Tools, FullEntry{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema()})
		} else {
			out.Tools = append(out.Tools, BriefEntry{Name: t.Name, DescriptionShort: truncate(t.Description, ShortDescriptionLength)})
		}
	}
	if len(page) == limit && len(matched) > limit {
		next := page[len(page)-1].Name
		out.NextCursor = &next
	}
	return out
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
