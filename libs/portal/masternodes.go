package portal

import (
	"context"
	"sync"
)

const DefaultPerPage = 10

type MasternodeSearcher interface {
	SearchMasternodes(ctx context.Context, q MasternodeQuery) (*MasternodePage, error)
}

// Table pages through the masternode list. Changing the search or sort
// resets it to the first page.
type Table struct {
	client  MasternodeSearcher
	perPage int

	mu       sync.Mutex
	search   string
	sortBy   string
	sortDesc bool
	page     int
	total    int
	items    []Masternode
}

func NewTable(client MasternodeSearcher, sizePerPage int) *Table {
	if sizePerPage <= 0 {
		sizePerPage = DefaultPerPage
	}
	return &Table{client: client, perPage: sizePerPage, page: 1}
}

func (t *Table) Query(page int) MasternodeQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query(page)
}

func (t *Table) query(page int) MasternodeQuery {
	if page < 1 {
		page = 1
	}
	return MasternodeQuery{
		Page:     page,
		Search:   t.search,
		SortBy:   t.sortBy,
		SortDesc: t.sortDesc,
		PerPage:  t.perPage,
	}
}

func (t *Table) Load(ctx context.Context, page int) (*MasternodePage, error) {
	q := t.Query(page)
	res, err := t.client.SearchMasternodes(ctx, q)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.page = q.Page
	t.total = res.Total
	t.items = res.Items
	t.mu.Unlock()
	return res, nil
}

// SetSearch stores the term exactly as typed.
func (t *Table) SetSearch(term string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.search = term
	t.page = 1
}

func (t *Table) SetSort(field string, desc bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sortBy = field
	t.sortDesc = desc
	t.page = 1
}

func (t *Table) Page() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

func (t *Table) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Table) Items() []Masternode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Masternode(nil), t.items...)
}

func (t *Table) Pages() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return 0
	}
	return (t.total + t.perPage - 1) / t.perPage
}
