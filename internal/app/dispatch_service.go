// internal/app/dispatch_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"poidh_notification_service/internal/domain/event"
	"poidh_notification_service/internal/domain/farcaster"
	idb "poidh_notification_service/internal/infra/database"
)

// EventDispatcher defines the poller entrypoint the scheduler drives.
type EventDispatcher interface {
	// ProcessPendingEvents runs one tick: fetch unacknowledged events, route
	// each through its composer, and acknowledge it.
	ProcessPendingEvents(ctx context.Context) error
}

type handlerFunc func(ctx context.Context, ev *event.Event, payload any)

// DispatchService implements the event dispatch pipeline. Events within a
// batch are handled strictly one after another.
type DispatchService struct {
	events   event.Repository
	resolver farcaster.Resolver
	notifier farcaster.Notifier
	logger   *logrus.Logger
	window   time.Duration
	handlers map[event.Kind]handlerFunc
}

func NewDispatchService(
	events event.Repository,
	resolver farcaster.Resolver,
	notifier farcaster.Notifier,
	logger *logrus.Logger,
	window time.Duration,
) *DispatchService {
	s := &DispatchService{
		events:   events,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		window:   window,
	}
	// The withdrawal kinds decode but have no composer yet; they fall through
	// to the no-op path and still get acknowledged.
	s.handlers = map[event.Kind]handlerFunc{
		event.KindBountyCreated:  s.handleBountyCreated,
		event.KindBountyJoined:   s.handleBountyJoined,
		event.KindClaimCreated:   s.handleClaimCreated,
		event.KindClaimAccepted:  s.handleClaimAccepted,
		event.KindVotingStarted:  s.handleVotingStarted,
		event.KindCommentCreated: s.handleComment,
		event.KindReplyCreated:   s.handleComment,
	}
	return s
}

// ProcessPendingEvents is the tick body. Every routed event is acknowledged
// after its handler returns, delivery outcome notwithstanding; only a failing
// acknowledgment write aborts the tick.
func (s *DispatchService) ProcessPendingEvents(ctx context.Context) error {
	cutoff := time.Now().Add(-s.window)
	pending, err := s.events.ListPending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list pending events: %w", err)
	}
	if len(pending) == 0 {
		s.logger.Debug("No pending notification events.")
		return nil
	}
	s.logger.Infof("Found %d unsent notification events.", len(pending))

	for _, ev := range pending {
		s.dispatch(ctx, ev)
		if err := s.events.MarkSent(ctx, ev.ID, time.Now()); err != nil {
			// A concurrent tick double-reading the batch may have acknowledged
			// the row first; that must not stall the events behind it.
			if errors.Is(err, idb.ErrEventNotFound) {
				s.logger.Debugf("Event %d was already acknowledged, skipping.", ev.ID)
				continue
			}
			return fmt.Errorf("failed to acknowledge event %d: %w", ev.ID, err)
		}
	}
	return nil
}

// dispatch routes one event to its composer. Unknown kinds and rejected
// payloads are per-row no-ops so a single bad row cannot stall the pipeline.
func (s *DispatchService) dispatch(ctx context.Context, ev *event.Event) {
	handler, ok := s.handlers[ev.Kind]
	if !ok {
		s.logger.Debugf("Event %d: no handler registered for kind %q, skipping.", ev.ID, ev.Kind)
		return
	}

	payload, err := event.Decode(ev.Kind, ev.Data)
	if err != nil {
		s.logger.Errorf("Event %d: payload rejected: %v", ev.ID, err)
		return
	}

	handler(ctx, ev, payload)
}
