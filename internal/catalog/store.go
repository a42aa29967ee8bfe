package catalog

import "context"

// Store is the catalog persistence boundary. Find returns the records inside
// q.Window in q.OrderBy order, and the total number of records matching
// q.Where regardless of the window.
type Store interface {
	Find(ctx context.Context, q Query) ([]RawRecord, int, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, q Query) ([]RawRecord, int, error)

func (f StoreFunc) Find(ctx context.Context, q Query) ([]RawRecord, int, error) {
	return f(ctx, q)
}
