// Package gas defines the fee-coin lease record managed by the lease store.
package gas

import (
	"time"

	"github.com/MoveSocial/social_layer/internal/chain"
)

// Lease is one spendable fee-payment object available for borrowing. LastUsed
// orders selection only; correctness relies solely on the store's atomic
// borrow and return.
type Lease struct {
	ObjectID string    `json:"objectId"`
	Version  uint64    `json:"version"`
	Digest   string    `json:"digest"`
	LastUsed time.Time `json:"lastUsed"`
}

// Ref converts the lease to the object reference attached as gas payment.
func (l Lease) Ref() chain.ObjectRef {
	return chain.ObjectRef{ObjectID: l.ObjectID, Version: l.Version, Digest: l.Digest}
}

// FromRef builds a lease from a chain object reference.
func FromRef(ref chain.ObjectRef) Lease {
	return Lease{ObjectID: ref.ObjectID, Version: ref.Version, Digest: ref.Digest}
}
