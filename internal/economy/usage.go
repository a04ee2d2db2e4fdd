package economy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UsageFunc consumes count units of an item for the given account. The units
// have already been debited when the handler runs; the handler stages any
// follow-up ledger moves on the same transaction and returns the user-facing
// outcome text.
type UsageFunc func(ctx context.Context, tx pgx.Tx, acct *Account, item *Item, count int64, arg string) (string, error)

// UsageRegistry binds item ids to their consume handlers. It is populated at
// startup and validated against the catalog, so a dangling registration is a
// construction error rather than a silent production no-op.
type UsageRegistry struct {
	catalog  *Catalog
	handlers map[string]UsageFunc
}

func NewUsageRegistry(catalog *Catalog) *UsageRegistry {
	return &UsageRegistry{catalog: catalog, handlers: make(map[string]UsageFunc)}
}

func (r *UsageRegistry) Register(itemID string, fn UsageFunc) error {
	it, ok := r.catalog.ByID(itemID)
	if !ok {
		return fmt.Errorf("usage registration for unknown item %q", itemID)
	}
	if _, dup := r.handlers[itemID]; dup {
		return fmt.Errorf("duplicate usage registration for %q", it.Name)
	}
	r.handlers[itemID] = fn
	return nil
}

// Resolve maps a display name to (item, handler). A name that is not a
// catalog item, or an item without a handler, yields ok=false: the caller
// treats the request as unrecognized input.
func (r *UsageRegistry) Resolve(name string) (*Item, UsageFunc, bool) {
	it, ok := r.catalog.ByName(name)
	if !ok {
		return nil, nil, false
	}
	fn, ok := r.handlers[it.ID]
	if !ok {
		return nil, nil, false
	}
	return it, fn, true
}
