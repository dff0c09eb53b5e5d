// internal/domain/event/payload.go
package event

import (
	"encoding/json"
	"fmt"

	"poidh_notification_service/internal/domain/chain"
)

// Bounty is the snapshot of an on-chain bounty carried by event payloads.
type Bounty struct {
	ID            int64   `json:"id"`
	ChainID       int64   `json:"chainId"`
	OnChainID     int64   `json:"onChainId"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	AmountUSD     float64 `json:"amountUSD"`
	AmountCrypto  string  `json:"amountCrypto"`
	Issuer        Address `json:"issuer"`
	CreatedAt     int64   `json:"createdAt"`
	InProgress    bool    `json:"inProgress"`
	IsJoined      bool    `json:"isJoinedBounty"`
	IsCanceled    bool    `json:"isCanceled"`
	IsMultiplayer bool    `json:"isMultiplayer"`
	IsVoting      bool    `json:"isVoting"`
	Deadline      *int64  `json:"deadline,omitempty"`
	Currency      string  `json:"currency"`
}

func (b *Bounty) validate() error {
	if b.ID == 0 {
		return fmt.Errorf("bounty id is missing")
	}
	if !chain.IsSupported(b.ChainID) {
		return fmt.Errorf("bounty %d: unsupported chain id %d", b.ID, b.ChainID)
	}
	if !b.Issuer.Valid() {
		return fmt.Errorf("bounty %d: invalid issuer address %q", b.ID, b.Issuer)
	}
	return nil
}

// BountyWithParticipants extends the bounty snapshot with the addresses that
// funded it so far.
type BountyWithParticipants struct {
	Bounty
	Participants []Address `json:"participants"`
}

func (b *BountyWithParticipants) validate() error {
	if err := b.Bounty.validate(); err != nil {
		return err
	}
	for _, p := range b.Participants {
		if !p.Valid() {
			return fmt.Errorf("bounty %d: invalid participant address %q", b.ID, p)
		}
	}
	return nil
}

// Claim is the snapshot of a claim submitted against a bounty.
type Claim struct {
	ID          int64   `json:"id"`
	ChainID     int64   `json:"chainId"`
	OnChainID   int64   `json:"onChainId"`
	BountyID    int64   `json:"bountyId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Issuer      Address `json:"issuer"`
	Owner       Address `json:"owner"`
	IsVoting    bool    `json:"isVoting"`
	IsAccepted  bool    `json:"isAccepted"`
}

func (c *Claim) validate() error {
	if !chain.IsSupported(c.ChainID) {
		return fmt.Errorf("claim %d: unsupported chain id %d", c.ID, c.ChainID)
	}
	if !c.Issuer.Valid() {
		return fmt.Errorf("claim %d: invalid issuer address %q", c.ID, c.Issuer)
	}
	return nil
}

// WithdrawalAmounts carries per-chain settlement totals.
type WithdrawalAmounts struct {
	Degen    *float64 `json:"withdrawalAmountDegen"`
	Base     *float64 `json:"withdrawalAmountBase"`
	Arbitrum *float64 `json:"withdrawalAmountArbitrum"`
}

// WithdrawIssuer describes who withdrew and how much.
type WithdrawIssuer struct {
	Address           Address           `json:"address"`
	AmountCrypto      string            `json:"amountCrypto"`
	AmountUSD         float64           `json:"amountUSD"`
	WithdrawalAmounts WithdrawalAmounts `json:"withdrawalAmounts"`
}

// Contribution is one participant's stake added to a bounty.
type Contribution struct {
	Address      Address `json:"address"`
	AmountCrypto string  `json:"amountCrypto"`
	AmountUSD    float64 `json:"amountUSD"`
}

// BountyCreatedPayload is the payload for KindBountyCreated.
type BountyCreatedPayload struct {
	Bounty
}

// BountyJoinedPayload is the payload for KindBountyJoined. Bounty.AmountUSD is
// the cumulative total including this contribution.
type BountyJoinedPayload struct {
	Participant Contribution           `json:"participant"`
	Bounty      BountyWithParticipants `json:"bounty"`
}

// ClaimPayload is shared by KindClaimCreated and KindClaimAccepted.
type ClaimPayload struct {
	Bounty BountyWithParticipants `json:"bounty"`
	Claim  Claim                  `json:"claim"`
}

// VotingStartedPayload is the payload for KindVotingStarted.
type VotingStartedPayload struct {
	Bounty        BountyWithParticipants `json:"bounty"`
	Claim         Claim                  `json:"claim"`
	OtherClaimers []Address              `json:"otherClaimers"`
}

// WithdrawFromOpenBountyPayload is the payload for KindWithdrawFromOpenBounty.
type WithdrawFromOpenBountyPayload struct {
	Issuer WithdrawIssuer         `json:"issuer"`
	Bounty BountyWithParticipants `json:"bounty"`
}

// WithdrawalPayload is the payload for KindWithdrawal.
type WithdrawalPayload struct {
	Issuer WithdrawIssuer `json:"issuer"`
}

// WithdrawalToPayload is the payload for KindWithdrawalTo.
type WithdrawalToPayload struct {
	To     Address        `json:"to"`
	Issuer WithdrawIssuer `json:"issuer"`
}

// CommentPayload is shared by KindCommentCreated and KindReplyCreated. The
// addresses list is the optional set of thread recipients.
type CommentPayload struct {
	Addresses []Address `json:"addresses,omitempty"`
	Link      string    `json:"link"`
	Message   string    `json:"message"`
	Issuer    Address   `json:"issuer"`
}

func (c *CommentPayload) validate() error {
	if !c.Issuer.Valid() {
		return fmt.Errorf("comment: invalid issuer address %q", c.Issuer)
	}
	if c.Link == "" {
		return fmt.Errorf("comment: link is missing")
	}
	return nil
}

// ErrUnknownKind is returned by Decode for kinds outside the closed set.
var ErrUnknownKind = fmt.Errorf("unknown event kind")

// decoders is the closed per-kind decoder table. Adding a kind means adding a
// payload type, a decoder here and, if it should notify, a handler in the
// dispatch table.
var decoders = map[Kind]func(json.RawMessage) (any, error){
	KindBountyCreated: func(data json.RawMessage) (any, error) {
		var p BountyCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, p.validate()
	},
	KindBountyJoined: func(data json.RawMessage) (any, error) {
		var p BountyJoinedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if !p.Participant.Address.Valid() {
			return nil, fmt.Errorf("invalid contributor address %q", p.Participant.Address)
		}
		return &p, p.Bounty.validate()
	},
	KindClaimCreated:  decodeClaimPayload,
	KindClaimAccepted: decodeClaimPayload,
	KindVotingStarted: func(data json.RawMessage) (any, error) {
		var p VotingStartedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if err := p.Bounty.validate(); err != nil {
			return nil, err
		}
		for _, a := range p.OtherClaimers {
			if !a.Valid() {
				return nil, fmt.Errorf("invalid claimer address %q", a)
			}
		}
		return &p, p.Claim.validate()
	},
	KindWithdrawFromOpenBounty: func(data json.RawMessage) (any, error) {
		var p WithdrawFromOpenBountyPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, p.Bounty.validate()
	},
	KindWithdrawal: func(data json.RawMessage) (any, error) {
		var p WithdrawalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	},
	KindWithdrawalTo: func(data json.RawMessage) (any, error) {
		var p WithdrawalToPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	},
	KindCommentCreated: decodeCommentPayload,
	KindReplyCreated:   decodeCommentPayload,
}

func decodeClaimPayload(data json.RawMessage) (any, error) {
	var p ClaimPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Bounty.validate(); err != nil {
		return nil, err
	}
	return &p, p.Claim.validate()
}

func decodeCommentPayload(data json.RawMessage) (any, error) {
	var p CommentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, p.validate()
}

// KnownKind reports whether the kind belongs to the closed payload set.
func KnownKind(k Kind) bool {
	_, ok := decoders[k]
	return ok
}

// Decode parses and validates the payload for the given kind. A row whose
// payload does not match its declared kind's shape fails here, per row, and
// must not take the rest of the batch down with it.
func Decode(kind Kind, data json.RawMessage) (any, error) {
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	payload, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return payload, nil
}
