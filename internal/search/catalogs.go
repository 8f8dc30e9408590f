// Package search lists catalogs by name and drives the interactive
// catalog-search prompt.
package search

import (
	"strings"

	"github.com/pitabwire/coreitems/internal/definition"
)

// DefaultPageSize is the number of entries per listing page.
const DefaultPageSize = 15

// CatalogSummary names a catalog and how many items it holds.
type CatalogSummary struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
}

// Summaries lists every catalog in registry order.
func Summaries(registry *definition.Registry) []CatalogSummary {
	catalogs := registry.Catalogs()
	out := make([]CatalogSummary, 0, len(catalogs))
	for _, c := range catalogs {
		out = append(out, CatalogSummary{Name: c.Name(), Items: c.Len()})
	}
	return out
}

// Catalogs returns the catalogs whose name contains term, ignoring case. An
// empty term matches every catalog.
func Catalogs(registry *definition.Registry, term string) []CatalogSummary {
	term = strings.ToLower(strings.TrimSpace(term))
	out := []CatalogSummary{}
	for _, s := range Summaries(registry) {
		if strings.Contains(strings.ToLower(s.Name), term) {
			out = append(out, s)
		}
	}
	return out
}

// Page is one window of a listing. Start and End index the listed slice.
type Page struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
	Start      int `json:"-"`
	End        int `json:"-"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// HasPrevious reports whether an earlier page exists.
func (p Page) HasPrevious() bool { return p.Page > 1 }

// Paginate clamps page into range: below one reads as the first page, past
// the end reads as the last. An empty listing has a single empty page.
func Paginate(total, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if total < 0 {
		total = 0
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := min(start+size, total)
	if start > total {
		start = total
	}
	return Page{Page: page, Size: size, TotalPages: pages, Total: total, Start: start, End: end}
}

// Slice returns the entries of items that fall on p.
func Slice[T any](items []T, p Page) []T {
	if p.Start >= len(items) {
		return []T{}
	}
	return items[p.Start:min(p.End, len(items))]
}
