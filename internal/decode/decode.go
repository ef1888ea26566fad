package decode

// Event is the sum type returned by Decode: exactly one of Stamp or
// Incentives is non-nil on success, matching the two wide tables of §3.
type Event struct {
	Stamp      *StampEvent
	Incentives *IncentivesEvent
}

// Decode is the single dispatcher named in §9: it routes to the
// family-specific pure decoder based on coord.ContractFamily. It returns:
//   - (Event{}, nil, nil) when the topic is unrecognised — the log belongs
//     to an unrelated event kind and is silently skipped (§4.3);
//   - (Event{}, mismatch, nil) on an attribution mismatch — a diagnostic,
//     not a hard failure (§7);
//   - (Event{}, nil, err) on a malformed payload (§7).
func Decode(log RawLog, coord Coordinates) (Event, *AttributionMismatch, error) {
	switch {
	case coord.ContractFamily.IsStampFamily():
		ev, mismatch, err := DecodeStamp(log, coord)
		if ev == nil {
			return Event{}, mismatch, err
		}
		return Event{Stamp: ev}, nil, nil

	case coord.ContractFamily.IsIncentivesFamily():
		ev, mismatch, err := DecodeIncentives(log, coord)
		if ev == nil {
			return Event{}, mismatch, err
		}
		return Event{Incentives: ev}, nil, nil

	default:
		return Event{}, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "unknown contract family"}
	}
}

// IsEmpty reports whether Decode found no matching event kind.
func (e Event) IsEmpty() bool { return e.Stamp == nil && e.Incentives == nil }
