package query

import (
	"context"
	"sort"

	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// AddressSummary projects each known address's aggregate role activity
// (§4.7 "Address summary"). AsOwnerCount is derived from the
// address-interaction table (every interaction targets the delegated
// owner/payer); the schema does not separately tag an interaction's target
// role, so AsPayerCount cannot be split out from AsOwnerCount and is always
// zero here (recorded as a simplification, not a bug — see DESIGN.md).
// AsSenderCount is the address's transaction count as a stamp-purchase
// sender. HasDelegation mirrors §8 scenario 6: true once this address has
// been observed as either side of an owner/sender mismatch.
func (s *Surface) AddressSummary(ctx context.Context) ([]storage.AddressSummaryRow, error) {
	records, err := s.store.Addresses(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "listing addresses")
	}

	rows := make([]storage.AddressSummaryRow, 0, len(records))
	for _, rec := range records {
		interactions, err := s.store.InteractionsTo(ctx, rec.Address)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, err, "listing interactions to "+string(rec.Address))
		}

		asOwner := uint64(len(interactions))
		rows = append(rows, storage.AddressSummaryRow{
			Address:       rec.Address,
			StampCount:    uint64(len(rec.StampIDs)),
			AsOwnerCount:  asOwner,
			AsSenderCount: rec.TransactionCount,
			HasDelegation: asOwner > 0 || rec.IsFunder,
			FirstSeen:     rec.FirstSeen,
			LastSeen:      rec.LastSeen,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Address < rows[j].Address })
	return rows, nil
}

// AddressDetail looks up one address record directly, for the CLI's
// single-address lookup path.
func (s *Surface) AddressDetail(ctx context.Context, addr types.Address) (storage.AddressRecord, bool, error) {
	return s.store.Address(ctx, addr)
}
