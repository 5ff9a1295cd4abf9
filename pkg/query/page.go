package query

import (
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageSize is the fixed page size for list endpoints.
const DefaultPageSize = 10

// Page is the list envelope returned by every collection endpoint.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ResolvePage validates the requested page against the filtered count
// and returns the concrete 1-based page number. An empty result set
// still has one valid page.
func ResolvePage(p Params, count int64, pageSize int) (int, error) {
	total := totalPages(count, pageSize)

	if p.PageLast {
		return total, nil
	}
	if p.Page > total {
		return 0, ErrInvalidPage
	}
	return p.Page, nil
}

func totalPages(count int64, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 1
	}
	return int((count + int64(pageSize) - 1) / int64(pageSize))
}

// NewPage assembles the envelope for a resolved page. Next and previous
// links preserve the request's other query parameters; the previous
// link pointing at page one drops the page parameter entirely.
func NewPage[T any](r *http.Request, page, pageSize int, count int64, results []T) Page[T] {
	if results == nil {
		results = []T{}
	}

	envelope := Page[T]{Count: count, Results: results}

	total := totalPages(count, pageSize)
	if page < total {
		envelope.Next = pageLink(r, page+1)
	}
	if page > 1 {
		envelope.Previous = pageLink(r, page-1)
	}

	return envelope
}

// pageLink rebuilds the request URL pointing at the given page.
func pageLink(r *http.Request, page int) *string {
	params := r.URL.Query()
	if page <= 1 {
		params.Del("page")
	} else {
		params.Set("page", strconv.Itoa(page))
	}

	link := url.URL{
		Scheme:   scheme(r),
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: params.Encode(),
	}

	s := link.String()
	return &s
}

// scheme resolves the external scheme, honoring the proxy header.
func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
