// Package registry loads versioned contract metadata and answers address↔
// metadata and "which version was active at block B" queries for the
// ingestion engine, the event decoder, and analytics attribution.
package registry

import (
	"fmt"
	"sort"

	"swarm-indexer/internal/types"
)

// Contract is one deployed contract version.
type Contract struct {
	Name            string
	Family          types.ContractFamily
	Address         types.Address
	Version         types.ContractVersion
	DeploymentBlock types.BlockNumber
	EndBlock        *types.BlockNumber // exclusive upper bound; nil = unbounded
	PausedAt        *types.BlockNumber
	Active          bool
}

// ActiveAt reports whether c was the authoritative contract for its family
// at block b: deployment_block <= b < end_block (if set).
func (c Contract) ActiveAt(b types.BlockNumber) bool {
	if b < c.DeploymentBlock {
		return false
	}
	if c.EndBlock != nil && b >= *c.EndBlock {
		return false
	}
	return true
}

// Window returns the contract's deployment window as a types.Range-friendly
// pair usable with types.Range.Intersects.
func (c Contract) Window() (types.BlockNumber, *types.BlockNumber) {
	return c.DeploymentBlock, c.EndBlock
}

// Registry is an immutable, validated view over a set of Contract records.
// Construction is the only place validation happens; once built, lookups
// cannot fail due to configuration errors.
type Registry struct {
	byName    map[string]Contract
	byAddress map[types.Address]Contract
	byFamily  map[types.ContractFamily][]Contract // sorted by DeploymentBlock
}

// ValidationIssue is one problem found while validating a candidate contract
// list. New builds the full list at once (supplement D.4) instead of
// stopping at the first issue.
type ValidationIssue struct {
	Family  types.ContractFamily
	Message string
}

func (v ValidationIssue) Error() string {
	return fmt.Sprintf("%s: %s", v.Family, v.Message)
}

// ValidationError aggregates every ValidationIssue found by New.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	s := fmt.Sprintf("%d contract registry validation issue(s)", len(e.Issues))
	for _, iss := range e.Issues {
		s += "\n  - " + iss.Error()
	}
	return s
}

// New validates and builds a Registry from contracts. Validation checks:
//   - address uniqueness
//   - per-family deployment windows are non-overlapping and, considered
//     together, cover the timeline with no gaps between consecutive
//     versions (a gap means no contract is authoritative there)
//   - at most one active=true per family
//   - deployment_block < end_block when both are set
//   - active=false with no end_block is a configuration error (§9 open
//     question (b): the registry takes missing end_block + inactive as
//     ambiguous and rejects it)
func New(contracts []Contract) (*Registry, error) {
	var issues []ValidationIssue

	byName := make(map[string]Contract, len(contracts))
	byAddress := make(map[types.Address]Contract, len(contracts))
	byFamily := make(map[types.ContractFamily][]Contract)
	activeSeen := make(map[types.ContractFamily]string)

	for _, c := range contracts {
		if !c.Family.Valid() {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("contract %q: unknown family", c.Name)})
			continue
		}
		if !c.Address.Valid() {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("contract %q: invalid address %q", c.Name, c.Address)})
			continue
		}
		if existing, ok := byName[c.Name]; ok {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("duplicate contract name %q (addresses %s, %s)", c.Name, existing.Address, c.Address)})
			continue
		}
		if existing, ok := byAddress[c.Address]; ok {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("address %s reused by %q and %q", c.Address, existing.Name, c.Name)})
			continue
		}
		if c.EndBlock != nil && c.DeploymentBlock >= *c.EndBlock {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("contract %q: deployment_block %d >= end_block %d", c.Name, c.DeploymentBlock, *c.EndBlock)})
			continue
		}
		if !c.Active && c.EndBlock == nil {
			issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("contract %q: active=false with no end_block is ambiguous", c.Name)})
			continue
		}
		if c.Active {
			if prior, ok := activeSeen[c.Family]; ok {
				issues = append(issues, ValidationIssue{c.Family, fmt.Sprintf("multiple active contracts: %q and %q", prior, c.Name)})
				continue
			}
			activeSeen[c.Family] = c.Name
		}

		byName[c.Name] = c
		byAddress[c.Address] = c
		byFamily[c.Family] = append(byFamily[c.Family], c)
	}

	for family, list := range byFamily {
		sort.Slice(list, func(i, j int) bool { return list[i].DeploymentBlock < list[j].DeploymentBlock })
		byFamily[family] = list
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1], list[i]
			if prev.EndBlock == nil {
				issues = append(issues, ValidationIssue{family, fmt.Sprintf("contract %q has no end_block but %q deploys after it at block %d", prev.Name, cur.Name, cur.DeploymentBlock)})
				continue
			}
			if *prev.EndBlock > cur.DeploymentBlock {
				issues = append(issues, ValidationIssue{family, fmt.Sprintf("windows overlap: %q ends at %d but %q deploys at %d", prev.Name, *prev.EndBlock, cur.Name, cur.DeploymentBlock)})
			} else if *prev.EndBlock < cur.DeploymentBlock {
				issues = append(issues, ValidationIssue{family, fmt.Sprintf("gap in coverage: %q ends at %d but %q does not deploy until %d", prev.Name, *prev.EndBlock, cur.Name, cur.DeploymentBlock)})
			}
		}
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	return &Registry{byName: byName, byAddress: byAddress, byFamily: byFamily}, nil
}

// FindByAddress returns the contract registered at addr, if any.
func (r *Registry) FindByAddress(addr types.Address) (Contract, bool) {
	c, ok := r.byAddress[addr]
	return c, ok
}

// FindByName returns the contract with the given unique name.
func (r *Registry) FindByName(name string) (Contract, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// FindActive returns the single active=true contract for family, if any.
func (r *Registry) FindActive(family types.ContractFamily) (Contract, bool) {
	for _, c := range r.byFamily[family] {
		if c.Active {
			return c, true
		}
	}
	return Contract{}, false
}

// FindActiveAt returns whichever version of family was authoritative at
// block b, per its deployment window (not the active flag, which only
// marks the current version).
func (r *Registry) FindActiveAt(family types.ContractFamily, b types.BlockNumber) (Contract, bool) {
	for _, c := range r.byFamily[family] {
		if c.ActiveAt(b) {
			return c, true
		}
	}
	return Contract{}, false
}

// VersionsOf returns every version of family, sorted by deployment block.
func (r *Registry) VersionsOf(family types.ContractFamily) []Contract {
	out := make([]Contract, len(r.byFamily[family]))
	copy(out, r.byFamily[family])
	return out
}

// AllIntersecting returns every contract of every family whose deployment
// window intersects rng — the set the ingestion engine must fetch logs for
// when scanning that range.
func (r *Registry) AllIntersecting(rng types.Range) []Contract {
	var out []Contract
	for _, list := range r.byFamily {
		for _, c := range list {
			start, end := c.Window()
			if rng.Intersects(start, end) {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].DeploymentBlock < out[j].DeploymentBlock
	})
	return out
}
