package core

// fetch.go accumulates every page of a remote case listing into memory.
//
// The remote API paginates but different surfaces advertise completion
// differently: some return a total count, some a last-page number, some
// nothing at all. The continuation decision is modeled as a small tagged
// variant so the fetch loop itself stays identical regardless of which
// signal a surface supports.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultFirstPage is the remote API's page cursor base. The listing
// endpoint counts pages from 1.
const DefaultFirstPage = 1

// DefaultPageDelay is the pause between successive page requests, kept well
// under the API's own rate limiting.
const DefaultPageDelay = 200 * time.Millisecond

// DefaultMaxPages is the hard ceiling on page requests per fetch. It bounds
// the loop even when a misbehaving endpoint never reports completion.
const DefaultMaxPages = 200

// ListParams identifies one page request: the cursor, the page size, and any
// filter parameters passed through to the listing endpoint.
type ListParams struct {
	Page     int
	PageSize int
	Filters  map[string]string
}

// ListPage is one page of the remote listing plus whatever completion
// metadata the surface provided. Total and LastPage are nil when the
// response did not carry them.
type ListPage struct {
	Items    []map[string]any
	Total    *int
	LastPage *int
}

// ListFunc requests one page from the remote listing endpoint.
type ListFunc func(ctx context.Context, params ListParams) (ListPage, error)

// continuation is the tagged completion signal derived from a page response.
type continuation struct {
	kind     continuationKind
	total    int // kind == continueByTotal
	lastPage int // kind == continueByLastPage
}

type continuationKind int

const (
	continueByTotal continuationKind = iota
	continueByLastPage
	continueByPageSize
)

// signal picks the strongest completion indicator the page carries, in
// priority order: explicit total count, explicit last page, then the
// page-size heuristic (a short page implies end-of-data).
func (p ListPage) signal() continuation {
	if p.Total != nil {
		return continuation{kind: continueByTotal, total: *p.Total}
	}
	if p.LastPage != nil {
		return continuation{kind: continueByLastPage, lastPage: *p.LastPage}
	}
	return continuation{kind: continueByPageSize}
}

// more reports whether another page should be requested after this one.
func (c continuation) more(accumulated, cursor, pageSize, received int) bool {
	switch c.kind {
	case continueByTotal:
		return accumulated < c.total
	case continueByLastPage:
		return cursor+1 <= c.lastPage
	default:
		return received == pageSize
	}
}

// Fetcher repeatedly requests listing pages and merges them into one
// in-memory collection. Items are appended in received order and never
// deduplicated here.
type Fetcher struct {
	FirstPage int
	PageSize  int
	PageDelay time.Duration
	MaxPages  int
	Sleep     Sleeper
}

// NewFetcher creates a Fetcher with the standard cursor base, delay, and
// safety ceiling. pageSize <= 0 falls back to 100.
func NewFetcher(pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Fetcher{
		FirstPage: DefaultFirstPage,
		PageSize:  pageSize,
		PageDelay: DefaultPageDelay,
		MaxPages:  DefaultMaxPages,
		Sleep:     SleepWithContext,
	}
}

// FetchAll accumulates every page matching filters. On a request-level
// failure mid-pagination it returns the partial accumulator together with
// the error; callers doing duplicate checks must treat a partial result as
// best-effort data, never as proof that no duplicate exists.
func (f *Fetcher) FetchAll(ctx context.Context, filters map[string]string, list ListFunc) ([]map[string]any, error) {
	var records []map[string]any
	cursor := f.FirstPage

	for requests := 0; requests < f.MaxPages; requests++ {
		page, err := list(ctx, ListParams{Page: cursor, PageSize: f.PageSize, Filters: filters})
		if err != nil {
			return records, fmt.Errorf("list page %d: %w", cursor, err)
		}

		records = append(records, page.Items...)

		// An empty page always terminates, whatever the metadata claims.
		if len(page.Items) == 0 {
			return records, nil
		}

		if !page.signal().more(len(records), cursor, f.PageSize, len(page.Items)) {
			return records, nil
		}

		cursor++

		// No delay after the final page; we only get here with more to fetch.
		if err := f.Sleep(ctx, f.PageDelay); err != nil {
			return records, fmt.Errorf("fetch cancelled: %w", err)
		}
	}

	slog.Warn("fetch stopped at page ceiling",
		"max_pages", f.MaxPages,
		"records", len(records),
	)
	return records, nil
}
