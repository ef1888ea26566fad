package ingest

import (
	"context"
	"time"

	"swarm-indexer/internal/decode"
	"swarm-indexer/internal/errs"
	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// applySideChannel derives the address and interaction records a stamp event
// implies (§4.8): the transaction sender (from_address), the event's owner,
// and — for StampsRegistry events only — the payer. When sender and owner
// differ, an address-interaction row records the delegation.
func (e *Engine) applySideChannel(ctx context.Context, tx storage.ChunkTx, ev *decode.StampEvent) error {
	if !e.cfg.AddressTracking.Enabled {
		return nil
	}
	if ev.TxHash == "" {
		return nil
	}

	detail, err := e.transactionDetail(ctx, ev.TxHash)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "fetching transaction detail for side channel")
	}
	from := types.FromCommon(detail.From)
	ev.FromAddress = &from

	fromIsContract := false
	if e.cfg.AddressTracking.ContractDetection {
		is, err := e.isContract(ctx, from)
		if err != nil {
			return errs.Wrap(errs.KindTransport, err, "checking contract-ness for side channel")
		}
		fromIsContract = is
	}

	if err := tx.UpsertTxDetail(ctx, storage.TxDetail{
		TxHash:             ev.TxHash,
		From:               from,
		To:                 commonAddressPtr(detail.To),
		Value:              bigFromGo(detail.Value),
		GasPrice:           bigFromGo(detail.GasPrice),
		BlockNumber:        ev.BlockNumber,
		BlockTimestamp:     ev.BlockTimestamp,
		InputData:          detail.Input,
		IsContractCreation: detail.IsCreation,
		FetchedAt:          ev.BlockTimestamp,
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "upserting transaction detail")
	}

	if _, err := tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) {
		rec.Address = from
		if rec.Classification == "" {
			rec.Classification = storage.ClassificationBuyer
		}
		if fromIsContract {
			rec.IsContract = true
		}
		rec.TransactionCount++
		touchSeenWindow(rec, ev.BlockNumber, ev.BlockTimestamp)
		if ev.BatchID != nil {
			rec.StampIDs = appendUnique(rec.StampIDs, *ev.BatchID)
			rec.TotalStampsPurchased++
		}
		if ev.NormalisedBalance != nil {
			rec.TotalAmountSpent = rec.TotalAmountSpent.Add(*ev.NormalisedBalance)
		}
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "upserting sender address record")
	}

	if ev.Owner != nil {
		if err := e.recordDelegate(ctx, tx, from, *ev.Owner, ev); err != nil {
			return err
		}
	}
	if ev.Payer != nil {
		if err := e.recordDelegate(ctx, tx, from, *ev.Payer, ev); err != nil {
			return err
		}
	}

	return nil
}

// recordDelegate upserts the other party's address record and, when it
// differs from the transaction sender, appends an address-interaction row
// (§4.8, §8 scenario 6: "0xA appears with role Owner ..., 0xB with role
// Sender").
func (e *Engine) recordDelegate(ctx context.Context, tx storage.ChunkTx, from, other types.Address, ev *decode.StampEvent) error {
	if _, err := tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) {
		rec.Address = other
		if rec.Classification == "" {
			rec.Classification = storage.ClassificationBuyer
		}
		touchSeenWindow(rec, ev.BlockNumber, ev.BlockTimestamp)
		if ev.BatchID != nil {
			rec.StampIDs = appendUnique(rec.StampIDs, *ev.BatchID)
		}
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "upserting delegate address record")
	}

	if other == from {
		return nil
	}

	if _, err := tx.UpsertAddress(ctx, func(rec *storage.AddressRecord) {
		rec.Address = from
		if rec.Classification == storage.ClassificationBuyer {
			rec.Classification = storage.ClassificationBoth
		} else if rec.Classification == "" {
			rec.Classification = storage.ClassificationFunder
		}
		rec.IsFunder = true
		rec.FundedAddresses = appendUnique(rec.FundedAddresses, string(other))
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "marking funder classification")
	}

	if err := tx.UpsertInteraction(ctx, storage.AddressInteraction{
		From:           from,
		To:             other,
		TxHash:         ev.TxHash,
		Amount:         ev.NormalisedBalance,
		BlockNumber:    ev.BlockNumber,
		BlockTimestamp: ev.BlockTimestamp,
		RelatedToStamp: true,
		StampBatchID:   ev.BatchID,
	}); err != nil {
		return errs.Wrap(errs.KindStorage, err, "upserting address interaction")
	}
	return nil
}

// touchSeenWindow extends an address record's seen-window and block range
// (§4.8 "extending ... updating seen-windows").
func touchSeenWindow(rec *storage.AddressRecord, block uint64, ts time.Time) {
	if rec.FirstSeen.IsZero() || ts.Before(rec.FirstSeen) {
		rec.FirstSeen = ts
	}
	if ts.After(rec.LastSeen) {
		rec.LastSeen = ts
	}
	if rec.FirstBlock == 0 || block < rec.FirstBlock {
		rec.FirstBlock = block
	}
	if block > rec.LastBlock {
		rec.LastBlock = block
	}
}

// appendUnique appends v to list unless already present.
func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
