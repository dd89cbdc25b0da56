package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

const defaultWatchInterval = 100 * time.Millisecond

// Watcher evaluates the auto-end triggers for a session: wall-clock expiry of
// the answering deadline and the everyone-answered shortcut. Only the host's
// process runs a watcher, since only the host may write transitions. Both
// triggers funnel into Machine.EndQuestion, whose phase guard makes a
// simultaneous double fire harmless.
type Watcher struct {
	machine  *Machine
	store    SessionStore
	clock    clockwork.Clock
	log      zerolog.Logger
	interval time.Duration
}

func NewWatcher(machine *Machine, store SessionStore, clock clockwork.Clock, log zerolog.Logger) *Watcher {
	return &Watcher{
		machine:  machine,
		store:    store,
		clock:    clock,
		log:      log,
		interval: defaultWatchInterval,
	}
}

// Run watches sessionID until the session finishes, disappears, or ctx is
// cancelled. It re-checks on every store change and on a sub-second tick so a
// deadline expiry is noticed even when no writes arrive.
func (w *Watcher) Run(ctx context.Context, sessionID, hostID string) error {
	changes := make(chan struct{}, 1)
	cancel, err := w.store.Subscribe(sessionID, func(domain.Session) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer cancel()

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		done, err := w.check(ctx, sessionID, hostID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		case <-ticker.Chan():
		}
	}
}

// check returns done=true when there is nothing left to watch.
func (w *Watcher) check(ctx context.Context, sessionID, hostID string) (bool, error) {
	s, ok, err := w.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if s.Status == domain.StatusFinished {
		return true, nil
	}
	if s.Status != domain.StatusActive || s.Game == nil || s.Game.Phase != domain.PhaseAnswering {
		return false, nil
	}

	expired := w.clock.Now().UnixMilli() >= s.Game.QuestionEndMs
	if expired || s.AllAnswered() {
		w.log.Debug().
			Str("session", sessionID).
			Bool("expired", expired).
			Msg("auto-ending question")
		if err := w.machine.EndQuestion(ctx, sessionID, hostID); err != nil {
			return false, err
		}
	}
	return false, nil
}
