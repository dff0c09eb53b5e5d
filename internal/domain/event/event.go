// internal/domain/event/event.go
package event

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"time"
)

// Kind discriminates the payload shape and routing of an activity event.
type Kind string

const (
	KindBountyCreated          Kind = "BountyCreated"
	KindBountyJoined           Kind = "BountyJoined"
	KindClaimCreated           Kind = "ClaimCreated"
	KindClaimAccepted          Kind = "ClaimAccepted"
	KindVotingStarted          Kind = "VotingStarted"
	KindWithdrawFromOpenBounty Kind = "WithdrawFromOpenBounty"
	KindWithdrawal             Kind = "Withdrawal"
	KindWithdrawalTo           Kind = "WithdrawalTo"
	KindCommentCreated         Kind = "CommentCreated"
	KindReplyCreated           Kind = "ReplyCreated"
)

// Event is one append-only row of the activity log. The upstream indexer owns
// creation; the dispatcher owns the single null -> non-null transition of
// SentAt. Everything else is immutable.
type Event struct {
	ID        int64
	CreatedAt time.Time
	Kind      Kind
	Data      json.RawMessage
	SentAt    sql.NullTime
}

// Pending reports whether the event has not been acknowledged yet.
func (e *Event) Pending() bool {
	return !e.SentAt.Valid
}

// Address is a hex-encoded on-chain address.
type Address string

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

// Valid reports whether the address is well formed.
func (a Address) Valid() bool {
	return addressPattern.MatchString(string(a))
}
