package inventory

import (
	"context"
	"errors"
)

// ResolveReader is the non-transactional read surface used by the
// resolution pre-pass.
type ResolveReader interface {
	GetItem(ctx context.Context, itemType ItemType, id int64) (Item, error)
	FindItemByCode(ctx context.Context, itemType ItemType, code string) (Item, error)
}

// Resolution maps caller references to concrete items. Failures are
// collected, not raised, so one response can report every bad reference.
type Resolution struct {
	Items  []Item
	Failed []ItemRef
}

// Resolver maps caller-supplied item references to concrete documents
// before any transaction opens. Lookups by code are plain queries and are
// therefore forbidden inside the commit phase; this pre-pass is where they
// happen.
type Resolver struct {
	reader ResolveReader
}

// NewResolver constructs a Resolver.
func NewResolver(reader ResolveReader) *Resolver {
	return &Resolver{reader: reader}
}

// Resolve looks up each reference, by id first, then by code. The result
// preserves input order for resolved items.
func (r *Resolver) Resolve(ctx context.Context, refs []ItemRef) (Resolution, error) {
	var res Resolution
	for _, ref := range refs {
		if !ref.Type.Valid() || (ref.ID == 0 && ref.Code == "") {
			res.Failed = append(res.Failed, ref)
			continue
		}
		item, err := r.lookup(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				res.Failed = append(res.Failed, ref)
				continue
			}
			return Resolution{}, err
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, ref ItemRef) (Item, error) {
	if ref.ID != 0 {
		item, err := r.reader.GetItem(ctx, ref.Type, ref.ID)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrItemNotFound) || ref.Code == "" {
			return Item{}, err
		}
	}
	return r.reader.FindItemByCode(ctx, ref.Type, ref.Code)
}
