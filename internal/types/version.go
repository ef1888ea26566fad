package types

// ContractVersion is an opaque version label, e.g. "v0.9.4". No ordering is
// assumed between versions of the same family; the registry orders versions
// by deployment block, not by this label.
type ContractVersion string

// ContractFamily discriminates the fixed set of contract families the
// indexer understands. Adding a family requires adding a decoder (§9 "a
// single decode(family, log, …) dispatcher suffices" — the family value is
// the dispatch tag).
type ContractFamily string

const (
	FamilyPostageStamp   ContractFamily = "PostageStamp"
	FamilyStampsRegistry ContractFamily = "StampsRegistry"
	FamilyPriceOracle    ContractFamily = "PriceOracle"
	FamilyStakeRegistry  ContractFamily = "StakeRegistry"
	FamilyRedistribution ContractFamily = "Redistribution"
)

// Valid reports whether f is one of the fixed known families.
func (f ContractFamily) Valid() bool {
	switch f {
	case FamilyPostageStamp, FamilyStampsRegistry, FamilyPriceOracle, FamilyStakeRegistry, FamilyRedistribution:
		return true
	default:
		return false
	}
}

// IsStampFamily reports whether f produces stamp events (§3 "Stamp event").
func (f ContractFamily) IsStampFamily() bool {
	return f == FamilyPostageStamp || f == FamilyStampsRegistry
}

// IsIncentivesFamily reports whether f produces storage-incentives events.
func (f ContractFamily) IsIncentivesFamily() bool {
	return f == FamilyPriceOracle || f == FamilyStakeRegistry || f == FamilyRedistribution
}
