// internal/app/composers.go
package app

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"poidh_notification_service/internal/domain/chain"
	"poidh_notification_service/internal/domain/event"
	"poidh_notification_service/internal/domain/farcaster"
)

// BaseURL is where notification links land.
const BaseURL = "https://poidh.xyz"

// bountyNotifyThresholdUSD is the minimum cumulative bounty value, in USD,
// worth announcing to the broadcast audience.
const bountyNotifyThresholdUSD = 100

func (s *DispatchService) handleBountyCreated(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.BountyCreatedPayload)

	if p.AmountUSD < bountyNotifyThresholdUSD {
		s.logger.Debugf("Event %d: bounty %d is below the $%d threshold, skipping.", ev.ID, p.ID, bountyNotifyThresholdUSD)
		return
	}

	body := p.Title
	if display, linked := s.linkedDisplayName(ctx, p.Issuer); linked {
		body += " from " + display
	}

	s.notifier.Send(ctx, farcaster.Notification{
		Title:     bountyAnnouncementTitle(p.AmountUSD),
		Body:      body,
		TargetURL: bountyURL(p.ChainID, p.ID),
	})
}

func (s *DispatchService) handleBountyJoined(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.BountyJoinedPayload)
	total := p.Bounty.AmountUSD
	contribution := p.Participant.AmountUSD

	// Announce the bounty only when this contribution is what pushed it over
	// the threshold. Contributions after crossing must not re-announce.
	if total >= bountyNotifyThresholdUSD && total-contribution < bountyNotifyThresholdUSD {
		s.notifier.Send(ctx, farcaster.Notification{
			Title:     bountyAnnouncementTitle(total),
			Body:      p.Bounty.Title,
			TargetURL: bountyURL(p.Bounty.ChainID, p.Bounty.ID),
		})
	}

	fids := s.resolver.FIDs(ctx, addressStrings(p.Bounty.Participants))
	if len(fids) == 0 {
		s.logger.Debugf("Event %d: no participants of bounty %d resolved, skipping contribution notice.", ev.ID, p.Bounty.ID)
		return
	}

	descriptor := mustChain(p.Bounty.ChainID)
	contributor := s.resolver.DisplayName(ctx, string(p.Participant.Address))
	amount := formatCryptoAmount(p.Participant.AmountCrypto, descriptor.Currency)

	s.notifier.Send(ctx, farcaster.Notification{
		Title:      "🤝 New bounty contribution",
		Body:       fmt.Sprintf("%s added %s to %q", contributor, amount, p.Bounty.Title),
		TargetURL:  bountyURL(p.Bounty.ChainID, p.Bounty.ID),
		TargetFIDs: fids,
	})
}

func (s *DispatchService) handleClaimCreated(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.ClaimPayload)

	fids := s.resolver.FIDs(ctx, addressStrings(p.Bounty.Participants))
	if len(fids) == 0 {
		s.logger.Debugf("Event %d: no participants of bounty %d resolved, skipping claim notice.", ev.ID, p.Bounty.ID)
		return
	}

	issuer := s.resolver.DisplayName(ctx, string(p.Claim.Issuer))

	s.notifier.Send(ctx, farcaster.Notification{
		Title:      "📥 New claim submitted",
		Body:       fmt.Sprintf("%s submitted a claim to %q", issuer, p.Bounty.Title),
		TargetURL:  bountyURL(p.Claim.ChainID, p.Claim.BountyID),
		TargetFIDs: fids,
	})
}

func (s *DispatchService) handleClaimAccepted(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.ClaimPayload)

	fids := s.resolver.FIDs(ctx, []string{string(p.Claim.Issuer)})
	if len(fids) == 0 {
		s.logger.Debugf("Event %d: claim issuer %s has no linked identity, skipping.", ev.ID, p.Claim.Issuer)
		return
	}

	issuer := s.resolver.DisplayName(ctx, string(p.Bounty.Issuer))

	s.notifier.Send(ctx, farcaster.Notification{
		Title:      "🏆 Your claim was accepted 🏆",
		Body:       fmt.Sprintf("Congratulations, %s accepted your claim for %q!", issuer, p.Bounty.Title),
		TargetURL:  bountyURL(p.Claim.ChainID, p.Claim.BountyID),
		TargetFIDs: fids,
	})
}

// handleVotingStarted fans one event out into three independent notices. A
// notice whose recipients resolve empty is skipped without affecting the rest.
func (s *DispatchService) handleVotingStarted(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.VotingStartedPayload)
	targetURL := bountyURL(p.Claim.ChainID, p.Claim.BountyID)

	if fids := s.resolver.FIDs(ctx, []string{string(p.Claim.Issuer)}); len(fids) > 0 {
		s.notifier.Send(ctx, farcaster.Notification{
			Title:      "🗳️ Voting has started",
			Body:       fmt.Sprintf("Your claim for %q is nominated. Voting closes in 48 hours.", p.Bounty.Title),
			TargetURL:  targetURL,
			TargetFIDs: fids,
		})
	}

	if fids := s.resolver.FIDs(ctx, addressStrings(p.Bounty.Participants)); len(fids) > 0 {
		s.notifier.Send(ctx, farcaster.Notification{
			Title:      "🗳️ Your vote is needed",
			Body:       fmt.Sprintf("Voting has started for %q. Cast your vote within the next 48 hours.", p.Bounty.Title),
			TargetURL:  targetURL,
			TargetFIDs: fids,
		})
	}

	if fids := s.resolver.FIDs(ctx, addressStrings(p.OtherClaimers)); len(fids) > 0 {
		s.notifier.Send(ctx, farcaster.Notification{
			Title:      "🗳️ Voting has started",
			Body:       fmt.Sprintf("Another claim for %q was nominated for voting.", p.Bounty.Title),
			TargetURL:  targetURL,
			TargetFIDs: fids,
		})
	}
}

func (s *DispatchService) handleComment(ctx context.Context, ev *event.Event, payload any) {
	p := payload.(*event.CommentPayload)

	if len(p.Addresses) == 0 {
		s.logger.Debugf("Event %d: comment has no explicit recipients, skipping.", ev.ID)
		return
	}

	fids := s.resolver.FIDs(ctx, addressStrings(p.Addresses))
	if len(fids) == 0 {
		s.logger.Debugf("Event %d: no comment recipients resolved, skipping.", ev.ID)
		return
	}

	title := "💬 New comment"
	if ev.Kind == event.KindReplyCreated {
		title = "💬 New reply"
	}
	issuer := s.resolver.DisplayName(ctx, string(p.Issuer))

	s.notifier.Send(ctx, farcaster.Notification{
		Title:      title,
		Body:       fmt.Sprintf("%s: %s", issuer, p.Message),
		TargetURL:  p.Link,
		TargetFIDs: fids,
	})
}

// linkedDisplayName reports whether the address maps to a linked Farcaster
// identity; the fallback truncated-address form does not count.
func (s *DispatchService) linkedDisplayName(ctx context.Context, address event.Address) (string, bool) {
	display := s.resolver.DisplayName(ctx, string(address))
	return display, strings.HasPrefix(display, "@")
}

func bountyAnnouncementTitle(amountUSD float64) string {
	return fmt.Sprintf("💰 NEW $%d BOUNTY 💰", int64(math.Round(amountUSD)))
}

func bountyURL(chainID, bountyID int64) string {
	return fmt.Sprintf("%s/%s/bounty/%d", BaseURL, mustChain(chainID).Slug, bountyID)
}

// mustChain is safe after payload validation, which rejects unknown chain ids.
func mustChain(chainID int64) chain.Descriptor {
	d, err := chain.ByID(chainID)
	if err != nil {
		panic(err)
	}
	return d
}

// formatCryptoAmount converts an amount in the currency's smallest unit (a
// decimal string, 18 decimals) into a human readable value.
func formatCryptoAmount(raw, currency string) string {
	smallest, ok := new(big.Float).SetString(raw)
	if !ok {
		smallest = new(big.Float)
	}
	amount := new(big.Float).Quo(smallest, big.NewFloat(1e18))

	text := strings.TrimRight(amount.Text('f', 6), "0")
	text = strings.TrimRight(text, ".")
	if text == "" || text == "-" {
		text = "0"
	}
	return text + " " + strings.ToUpper(currency)
}

func addressStrings(addresses []event.Address) []string {
	out := make([]string, len(addresses))
	for i, a := range addresses {
		out[i] = string(a)
	}
	return out
}
