package reconcile

import (
	"context"

	"github.com/sells-group/deal-engine/pkg/records"
)

// PartialRecord is what one provider knows about a property. A nil record
// means the provider has no match for the address.
type PartialRecord struct {
	Fields  map[string]float64
	Display map[string]string
}

// Provider is an independent public-record source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, address string) (*PartialRecord, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, address string) (*PartialRecord, error)
}

// Name implements Provider.
func (p ProviderFunc) Name() string { return p.ID }

// Fetch implements Provider.
func (p ProviderFunc) Fetch(ctx context.Context, address string) (*PartialRecord, error) {
	return p.Fn(ctx, address)
}

// recordsLookup is the method set shared by the pkg/records clients.
type recordsLookup interface {
	Name() string
	Lookup(ctx context.Context, address string) (*records.Record, error)
}

// FromRecords adapts a pkg/records client (RegridClient, RentCastClient) to a Provider.
func FromRecords(c recordsLookup) Provider {
	return &recordsProvider{c: c}
}

type recordsProvider struct {
	c recordsLookup
}

func (p *recordsProvider) Name() string { return p.c.Name() }

func (p *recordsProvider) Fetch(ctx context.Context, address string) (*PartialRecord, error) {
	rec, err := p.c.Lookup(ctx, address)
	if err != nil || rec == nil {
		return nil, err
	}
	return &PartialRecord{Fields: rec.Fields, Display: rec.Display}, nil
}
