// internal/domain/farcaster/farcaster.go
package farcaster

import "context"

// User is a Farcaster identity linked to an on-chain address. The first user
// returned for an address is authoritative.
type User struct {
	FID      int64  `json:"fid"`
	Username string `json:"username"`
}

// Notification is a fully composed push notification ready for delivery. An
// empty TargetFIDs means the default (broadcast) audience.
type Notification struct {
	Title      string
	Body       string
	TargetURL  string
	TargetFIDs []int64
}

// Resolver maps on-chain addresses to linked Farcaster identities. Lookups
// degrade to "unknown" on any failure: callers must treat "not found" and
// "resolver unreachable" identically.
type Resolver interface {
	// UsersByAddresses performs one batched lookup. Addresses are case folded
	// to lower case before the call; the returned map is keyed by the folded
	// form. A failed lookup yields an empty map, never an error.
	UsersByAddresses(ctx context.Context, addresses []string) map[string][]User

	// FIDs resolves addresses to the fid of each address's first linked user,
	// dropping addresses with no linked identity.
	FIDs(ctx context.Context, addresses []string) []int64

	// DisplayName returns "@<username>" for a resolved address, otherwise the
	// address truncated to a short prefix.
	DisplayName(ctx context.Context, address string) string
}

// Notifier delivers one notification. Delivery is best effort: transport
// failures are retried a bounded number of times and then absorbed, never
// surfaced to the caller.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}
