package product

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Listing defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// ListRequest carries the raw listing parameters. Query and Sort are kept
// verbatim so navigation links can reproduce them.
type ListRequest struct {
	Page  int
	Limit int
	Query string
	Sort  string
}

// ParseListRequest reads page, limit, query and sort from v. Missing or
// unparsable numbers fall back to the defaults; values below 1 clamp to 1.
func ParseListRequest(v url.Values) ListRequest {
	return ListRequest{
		Page:  parsePositive(v.Get("page"), DefaultPage),
		Limit: parsePositive(v.Get("limit"), DefaultLimit),
		Query: v.Get("query"),
		Sort:  v.Get("sort"),
	}
}

func parsePositive(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return def
	}
	switch {
	case n < 1:
		return 1
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int(n)
}

// ParseFilter interprets a single key=value filter expression. Only
// "category" and "status" are recognized; anything else, including text with
// no '=', matches all products. The value ends at the next '=', so
// "category=a=b" filters on "a".
func ParseFilter(query string) Filter {
	key, value, ok := strings.Cut(query, "=")
	if !ok {
		return Filter{}
	}
	value, _, _ = strings.Cut(value, "=")
	switch key {
	case "category":
		return Filter{Category: &value}
	case "status":
		status := value == "true"
		return Filter{Status: &status}
	default:
		return Filter{}
	}
}

// ParseSort maps "asc" and "desc" to price orderings. Other values leave the
// listing unsorted.
func ParseSort(sort string) SortOrder {
	switch sort {
	case "asc":
		return SortPriceAsc
	case "desc":
		return SortPriceDesc
	default:
		return SortNone
	}
}

// Page is one page of a catalog listing with its navigation metadata.
type Page struct {
	Products    []Product
	TotalDocs   int
	TotalPages  int
	Page        int
	Limit       int
	HasPrevPage bool
	HasNextPage bool

	query string
	sort  string
}

// NewPage computes pagination metadata for products found by req out of
// total matching records.
func NewPage(req ListRequest, products []Product, total int) *Page {
	totalPages := 0
	if total > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}
	return &Page{
		Products:    products,
		TotalDocs:   total,
		TotalPages:  totalPages,
		Page:        req.Page,
		Limit:       req.Limit,
		HasPrevPage: req.Page > 1,
		HasNextPage: req.Page < totalPages,
		query:       req.Query,
		sort:        req.Sort,
	}
}

// PrevPage returns the previous page number, or nil on the first page.
func (p *Page) PrevPage() *int {
	if !p.HasPrevPage {
		return nil
	}
	n := p.Page - 1
	return &n
}

// NextPage returns the next page number, or nil on the last page.
func (p *Page) NextPage() *int {
	if !p.HasNextPage {
		return nil
	}
	n := p.Page + 1
	return &n
}

// PrevLink returns the listing URL of the previous page under base, or nil.
func (p *Page) PrevLink(base string) *string {
	n := p.PrevPage()
	if n == nil {
		return nil
	}
	link := p.link(base, *n)
	return &link
}

// NextLink returns the listing URL of the next page under base, or nil.
func (p *Page) NextLink(base string) *string {
	n := p.NextPage()
	if n == nil {
		return nil
	}
	link := p.link(base, *n)
	return &link
}

func (p *Page) link(base string, page int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?page=")
	b.WriteString(strconv.Itoa(page))
	b.WriteString("&limit=")
	b.WriteString(strconv.Itoa(p.Limit))
	if p.query != "" {
		b.WriteString("&query=")
		b.WriteString(url.QueryEscape(p.query))
	}
	if p.sort != "" {
		b.WriteString("&sort=")
		b.WriteString(url.QueryEscape(p.sort))
	}
	return b.String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
