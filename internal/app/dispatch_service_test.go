package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poidh_notification_service/internal/domain/event"
	"poidh_notification_service/internal/domain/farcaster"
	idb "poidh_notification_service/internal/infra/database"
)

type fakeRepo struct {
	pending   []*event.Event
	markCalls map[int64]int
	markErrs  map[int64]error
}

func (r *fakeRepo) ListPending(_ context.Context, _ time.Time) ([]*event.Event, error) {
	return r.pending, nil
}

func (r *fakeRepo) MarkSent(_ context.Context, id int64, _ time.Time) error {
	if r.markCalls == nil {
		r.markCalls = map[int64]int{}
	}
	r.markCalls[id]++
	return r.markErrs[id]
}

type fakeResolver struct {
	users map[string][]farcaster.User
}

func (r *fakeResolver) UsersByAddresses(_ context.Context, addresses []string) map[string][]farcaster.User {
	out := map[string][]farcaster.User{}
	for _, a := range addresses {
		folded := strings.ToLower(a)
		if linked, ok := r.users[folded]; ok {
			out[folded] = linked
		}
	}
	return out
}

func (r *fakeResolver) FIDs(ctx context.Context, addresses []string) []int64 {
	users := r.UsersByAddresses(ctx, addresses)
	fids := make([]int64, 0, len(addresses))
	for _, a := range addresses {
		if linked := users[strings.ToLower(a)]; len(linked) > 0 {
			fids = append(fids, linked[0].FID)
		}
	}
	return fids
}

func (r *fakeResolver) DisplayName(ctx context.Context, address string) string {
	users := r.UsersByAddresses(ctx, []string{address})
	if linked := users[strings.ToLower(address)]; len(linked) > 0 {
		return "@" + linked[0].Username
	}
	if len(address) > 7 {
		return address[:7]
	}
	return address
}

type fakeNotifier struct {
	sent []farcaster.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification farcaster.Notification) {
	n.sent = append(n.sent, notification)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(repo *fakeRepo, resolver *fakeResolver, notifier *fakeNotifier) *DispatchService {
	return NewDispatchService(repo, resolver, notifier, quietLogger(), 5*time.Minute)
}

func mkEvent(t *testing.T, id int64, kind event.Kind, payload any) *event.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &event.Event{ID: id, CreatedAt: time.Now(), Kind: kind, Data: data}
}

func testBounty(amountUSD float64, participants ...event.Address) event.BountyWithParticipants {
	return event.BountyWithParticipants{
		Bounty: event.Bounty{
			ID:           7,
			ChainID:      8453,
			Title:        "find my lost dog",
			AmountUSD:    amountUSD,
			AmountCrypto: "40000000000000000",
			Issuer:       "0xABCDEF0123456789",
			Currency:     "eth",
		},
		Participants: participants,
	}
}

func TestProcessPendingEvents_AcknowledgesEveryEventExactlyOnce(t *testing.T) {
	repo := &fakeRepo{pending: []*event.Event{
		mkEvent(t, 1, event.KindBountyCreated, testBounty(150).Bounty),
		{ID: 2, Kind: "SomethingNew", Data: json.RawMessage(`{"whatever":true}`)},
		{ID: 3, Kind: event.KindBountyCreated, Data: json.RawMessage(`{"id":"not-a-number"}`)},
		mkEvent(t, 4, event.KindBountyCreated, testBounty(200).Bounty),
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	err := svc.ProcessPendingEvents(context.Background())
	require.NoError(t, err)

	for _, id := range []int64{1, 2, 3, 4} {
		assert.Equal(t, 1, repo.markCalls[id], "event %d should be acknowledged exactly once", id)
	}
	// The unknown kind and the malformed row produce no deliveries, and the
	// malformed row does not take down the events behind it.
	assert.Len(t, notifier.sent, 2)
}

func TestProcessPendingEvents_AlreadyAcknowledgedRowDoesNotStallBatch(t *testing.T) {
	// A concurrent tick acknowledged event 1 between our read and our write.
	repo := &fakeRepo{
		pending: []*event.Event{
			mkEvent(t, 1, event.KindBountyCreated, testBounty(150).Bounty),
			mkEvent(t, 2, event.KindBountyCreated, testBounty(200).Bounty),
		},
		markErrs: map[int64]error{1: idb.ErrEventNotFound},
	}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	err := svc.ProcessPendingEvents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.markCalls[2], "events after the already-acknowledged row should still be processed")
}

func TestProcessPendingEvents_AcknowledgmentWriteFailureAbortsTick(t *testing.T) {
	repo := &fakeRepo{
		pending: []*event.Event{
			mkEvent(t, 1, event.KindBountyCreated, testBounty(150).Bounty),
			mkEvent(t, 2, event.KindBountyCreated, testBounty(200).Bounty),
		},
		markErrs: map[int64]error{1: fmt.Errorf("connection reset")},
	}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	err := svc.ProcessPendingEvents(context.Background())
	assert.ErrorContains(t, err, "failed to acknowledge event 1")
	assert.Zero(t, repo.markCalls[2], "a real acknowledgment failure still aborts the tick")
}

func TestBountyCreated_ComposesBroadcastNotification(t *testing.T) {
	bounty := testBounty(150).Bounty
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyCreated, bounty)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xabcdef0123456789": {{FID: 42, Username: "alice"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "💰 NEW $150 BOUNTY 💰", n.Title)
	assert.Equal(t, "find my lost dog from @alice", n.Body)
	assert.Equal(t, "https://poidh.xyz/base/bounty/7", n.TargetURL)
	assert.Empty(t, n.TargetFIDs)
}

func TestBountyCreated_UnresolvedIssuerOmitsAttribution(t *testing.T) {
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyCreated, testBounty(150).Bounty)}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "find my lost dog", notifier.sent[0].Body)
}

func TestBountyCreated_BelowThresholdIsNoOp(t *testing.T) {
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyCreated, testBounty(99.99).Bounty)}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	assert.Empty(t, notifier.sent)
	assert.Equal(t, 1, repo.markCalls[1])
}

func joinedPayload(total, contribution float64, participants ...event.Address) event.BountyJoinedPayload {
	return event.BountyJoinedPayload{
		Participant: event.Contribution{
			Address:      "0xC0FFEE0000000000",
			AmountCrypto: "40000000000000000",
			AmountUSD:    contribution,
		},
		Bounty: testBounty(total, participants...),
	}
}

func TestBountyJoined_ThresholdCrossingFiresOnce(t *testing.T) {
	// Prior total 80 + contribution 40 crosses the line.
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyJoined, joinedPayload(120, 40))}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "💰 NEW $120 BOUNTY 💰", notifier.sent[0].Title)
	assert.Empty(t, notifier.sent[0].TargetFIDs)
}

func TestBountyJoined_AlreadyOverThresholdDoesNotReannounce(t *testing.T) {
	// Prior total 120 + contribution 30: already over before this one.
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyJoined, joinedPayload(150, 30))}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	assert.Empty(t, notifier.sent)
}

func TestBountyJoined_ContributionNoticeToResolvedParticipants(t *testing.T) {
	payload := joinedPayload(150, 30, "0xAA11", "0xBB22")
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyJoined, payload)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xaa11":             {{FID: 1, Username: "bob"}},
		"0xbb22":             {{FID: 2, Username: "carol"}},
		"0xc0ffee0000000000": {{FID: 9, Username: "dave"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "🤝 New bounty contribution", n.Title)
	assert.Equal(t, `@dave added 0.04 ETH to "find my lost dog"`, n.Body)
	assert.Equal(t, []int64{1, 2}, n.TargetFIDs)
}

func TestClaimCreated_NotifiesBountyParticipants(t *testing.T) {
	payload := event.ClaimPayload{
		Bounty: testBounty(150, "0xAA11"),
		Claim: event.Claim{
			ID:       31,
			ChainID:  42161,
			BountyID: 12,
			Issuer:   "0xDD44",
			Owner:    "0xDD44",
		},
	}
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindClaimCreated, payload)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xaa11": {{FID: 1, Username: "bob"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, `0xDD44 submitted a claim to "find my lost dog"`, n.Body)
	// The URL follows the claim's chain, not the bounty snapshot's.
	assert.Equal(t, "https://poidh.xyz/arbitrum/bounty/12", n.TargetURL)
	assert.Equal(t, []int64{1}, n.TargetFIDs)
}

func TestClaimAccepted_OnlyWhenWinnerResolves(t *testing.T) {
	payload := event.ClaimPayload{
		Bounty: testBounty(150),
		Claim: event.Claim{
			ID:       31,
			ChainID:  8453,
			BountyID: 7,
			Issuer:   "0xDD44",
			Owner:    "0xDD44",
		},
	}

	t.Run("unresolved winner is a no-op", func(t *testing.T) {
		repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindClaimAccepted, payload)}}
		notifier := &fakeNotifier{}
		svc := newTestService(repo, &fakeResolver{}, notifier)

		require.NoError(t, svc.ProcessPendingEvents(context.Background()))
		assert.Empty(t, notifier.sent)
		assert.Equal(t, 1, repo.markCalls[1])
	})

	t.Run("resolved winner is congratulated", func(t *testing.T) {
		repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindClaimAccepted, payload)}}
		resolver := &fakeResolver{users: map[string][]farcaster.User{
			"0xdd44": {{FID: 5, Username: "eve"}},
		}}
		notifier := &fakeNotifier{}
		svc := newTestService(repo, resolver, notifier)

		require.NoError(t, svc.ProcessPendingEvents(context.Background()))
		require.Len(t, notifier.sent, 1)
		n := notifier.sent[0]
		assert.Equal(t, []int64{5}, n.TargetFIDs)
		assert.Equal(t, `Congratulations, 0xABCDE accepted your claim for "find my lost dog"!`, n.Body)
	})
}

func TestVotingStarted_NoticesAreIndependent(t *testing.T) {
	payload := event.VotingStartedPayload{
		Bounty: testBounty(150, "0xAA11"),
		Claim: event.Claim{
			ID:       31,
			ChainID:  8453,
			BountyID: 7,
			Issuer:   "0xDD44",
			Owner:    "0xDD44",
		},
		OtherClaimers: []event.Address{"0xEE55"},
	}
	// Only the bounty participants resolve; the nominated claimer and the
	// other claimers do not.
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindVotingStarted, payload)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xaa11": {{FID: 1, Username: "bob"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "🗳️ Your vote is needed", n.Title)
	assert.Contains(t, n.Body, "48 hours")
	assert.Equal(t, []int64{1}, n.TargetFIDs)
}

func TestVotingStarted_AllGroupsResolved(t *testing.T) {
	payload := event.VotingStartedPayload{
		Bounty: testBounty(150, "0xAA11"),
		Claim: event.Claim{
			ID:       31,
			ChainID:  8453,
			BountyID: 7,
			Issuer:   "0xDD44",
			Owner:    "0xDD44",
		},
		OtherClaimers: []event.Address{"0xEE55"},
	}
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindVotingStarted, payload)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xaa11": {{FID: 1, Username: "bob"}},
		"0xdd44": {{FID: 5, Username: "eve"}},
		"0xee55": {{FID: 6, Username: "frank"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 3)
	assert.Equal(t, []int64{5}, notifier.sent[0].TargetFIDs)
	assert.Contains(t, notifier.sent[0].Body, "Your claim")
	assert.Equal(t, []int64{1}, notifier.sent[1].TargetFIDs)
	assert.Equal(t, []int64{6}, notifier.sent[2].TargetFIDs)
	assert.Contains(t, notifier.sent[2].Body, "Another claim")
}

func TestCommentCreated_NotifiesExplicitRecipients(t *testing.T) {
	payload := event.CommentPayload{
		Addresses: []event.Address{"0xAA11"},
		Link:      "https://poidh.xyz/base/bounty/7",
		Message:   "is this still open?",
		Issuer:    "0xDD44",
	}
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindCommentCreated, payload)}}
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xaa11": {{FID: 1, Username: "bob"}},
		"0xdd44": {{FID: 5, Username: "eve"}},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, resolver, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "💬 New comment", n.Title)
	assert.Equal(t, "@eve: is this still open?", n.Body)
	assert.Equal(t, "https://poidh.xyz/base/bounty/7", n.TargetURL)
}

func TestReplyCreated_SkipsWhenNoRecipients(t *testing.T) {
	payload := event.CommentPayload{
		Link:    "https://poidh.xyz/base/bounty/7",
		Message: "still open",
		Issuer:  "0xDD44",
	}
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindReplyCreated, payload)}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	assert.Empty(t, notifier.sent)
	assert.Equal(t, 1, repo.markCalls[1])
}

func TestWithdrawalKinds_DecodeButDoNotNotify(t *testing.T) {
	payload := event.WithdrawalPayload{
		Issuer: event.WithdrawIssuer{Address: "0xDD44", AmountCrypto: "1000", AmountUSD: 12},
	}
	repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindWithdrawal, payload)}}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeResolver{}, notifier)

	require.NoError(t, svc.ProcessPendingEvents(context.Background()))

	assert.Empty(t, notifier.sent)
	assert.Equal(t, 1, repo.markCalls[1])
}

func TestComposerDeterminism(t *testing.T) {
	bounty := testBounty(150).Bounty
	resolver := &fakeResolver{users: map[string][]farcaster.User{
		"0xabcdef0123456789": {{FID: 42, Username: "alice"}},
	}}

	var outputs []farcaster.Notification
	for i := 0; i < 2; i++ {
		repo := &fakeRepo{pending: []*event.Event{mkEvent(t, 1, event.KindBountyCreated, bounty)}}
		notifier := &fakeNotifier{}
		svc := newTestService(repo, resolver, notifier)
		require.NoError(t, svc.ProcessPendingEvents(context.Background()))
		require.Len(t, notifier.sent, 1)
		outputs = append(outputs, notifier.sent[0])
	}

	assert.Equal(t, outputs[0], outputs[1])
}

func TestFormatCryptoAmount(t *testing.T) {
	assert.Equal(t, "0.04 ETH", formatCryptoAmount("40000000000000000", "eth"))
	assert.Equal(t, "1 DEGEN", formatCryptoAmount("1000000000000000000", "degen"))
	assert.Equal(t, "0 ETH", formatCryptoAmount("0", "eth"))
	assert.Equal(t, "0 ETH", formatCryptoAmount("garbage", "eth"))
}
