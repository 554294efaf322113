// Package catalog pages through the fixed list of prompt templates.
package catalog

import (
	"errors"
	"fmt"
)

const (
	DefaultTotal    = 20
	DefaultPageSize = 5
)

// ErrPageOutOfRange is returned for a page index outside [0, Pages()).
var ErrPageOutOfRange = errors.New("catalog: page out of range")

// Entry is one template. IDs are 1-based.
type Entry struct {
	ID       int
	LabelKey string
}

// Page is a slice of the catalog ready to render.
type Page struct {
	Index   int
	Items   []Entry
	HasPrev bool
	HasNext bool
}

// Catalog is an immutable list of Total templates split into pages.
type Catalog struct {
	total    int
	pageSize int
}

// New builds a catalog. Non-positive arguments fall back to the defaults.
func New(total, pageSize int) *Catalog {
	if total <= 0 {
		total = DefaultTotal
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Catalog{total: total, pageSize: pageSize}
}

// Pages returns ceil(total / pageSize).
func (c *Catalog) Pages() int {
	return (c.total + c.pageSize - 1) / c.pageSize
}

// Page returns page k.
func (c *Catalog) Page(k int) (Page, error) {
	if k < 0 || k >= c.Pages() {
		return Page{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, k)
	}
	first := k*c.pageSize + 1
	last := min((k+1)*c.pageSize, c.total)
	items := make([]Entry, 0, last-first+1)
	for id := first; id <= last; id++ {
		items = append(items, entry(id))
	}
	return Page{
		Index:   k,
		Items:   items,
		HasPrev: k > 0,
		HasNext: k < c.Pages()-1,
	}, nil
}

// Contains reports whether id names a template.
func (c *Catalog) Contains(id int) bool {
	return id >= 1 && id <= c.total
}

// Get returns the entry for id.
func (c *Catalog) Get(id int) (Entry, bool) {
	if !c.Contains(id) {
		return Entry{}, false
	}
	return entry(id), true
}

func entry(id int) Entry {
	return Entry{ID: id, LabelKey: fmt.Sprintf("template_%d", id)}
}
