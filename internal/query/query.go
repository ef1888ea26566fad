// Package query implements the query surface (§4.7): thin, read-only
// projections over the persisted tables. No function in this package
// mutates state; every query is safe to run concurrently with an
// in-progress scan.
package query

import (
	"swarm-indexer/internal/expiry"
	"swarm-indexer/internal/storage"
)

// Surface bundles the storage and expiry-engine collaborators the query
// layer reads through. It holds no state of its own (§9 "no global
// singletons").
type Surface struct {
	store  storage.Store
	expiry *expiry.Engine
}

// NewSurface constructs a Surface.
func NewSurface(store storage.Store, expiryEngine *expiry.Engine) *Surface {
	return &Surface{store: store, expiry: expiryEngine}
}
