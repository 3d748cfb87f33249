package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"taskpulse/internal/domain"
	"taskpulse/internal/notify"
	"taskpulse/internal/store"
)

const (
	overdueSubject  = "URGENT: Task Past Due!"
	reminderSubject = "Reminder: Task Due Soon"
)

// Sweeper detects deadline crossings and dispatches at-most-once
// notifications. Each tick runs two passes: overdue tasks get moved to
// "Past due", and tasks due within the upcoming window get a reminder.
// Both passes persist their dedup flag with a conditional update before any
// send, so overlapping ticks and concurrent instances cannot double-notify.
type Sweeper struct {
	store    store.Store
	sink     notify.Sink
	resolver *Resolver
	window   time.Duration
}

func New(s store.Store, sink notify.Sink, upcomingWindow time.Duration) *Sweeper {
	if upcomingWindow <= 0 {
		upcomingWindow = 24 * time.Hour
	}
	return &Sweeper{
		store:    s,
		sink:     sink,
		resolver: NewResolver(s),
		window:   upcomingWindow,
	}
}

// RunOnce executes a single sweep tick. Query failures abort the affected
// pass; per-task failures are logged and skipped, leaving the task eligible
// for the next tick.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	s.passOverdue(ctx, now)
	s.passUpcoming(ctx, now)
}

func (s *Sweeper) passOverdue(ctx context.Context, now time.Time) {
	tasks, err := s.store.FindOverdueCandidates(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to query overdue candidates")
		return
	}

	for _, t := range tasks {
		won, err := s.store.MarkPastDue(ctx, t.ID)
		if err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("failed to mark task past due")
			continue
		}
		if !won {
			// Another sweep instance got here first.
			continue
		}

		wsName := s.workspaceName(ctx, t)
		body := fmt.Sprintf("Alert: Task '%s' in '%s' is now PAST DUE!", t.Title, wsName)
		s.notify(ctx, t, overdueSubject, body)

		log.Info().Str("task_id", t.ID).Str("title", t.Title).Time("deadline", t.Deadline).Msg("task moved to past due")
	}
}

func (s *Sweeper) passUpcoming(ctx context.Context, now time.Time) {
	tasks, err := s.store.FindUpcomingCandidates(ctx, now, s.window)
	if err != nil {
		log.Error().Err(err).Msg("failed to query upcoming candidates")
		return
	}

	for _, t := range tasks {
		won, err := s.store.MarkReminderSent(ctx, t.ID)
		if err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("failed to mark reminder sent")
			continue
		}
		if !won {
			continue
		}

		body := fmt.Sprintf("Reminder: Task '%s' is due in less than 24 hours.", t.Title)
		s.notify(ctx, t, reminderSubject, body)

		log.Info().Str("task_id", t.ID).Str("title", t.Title).Time("deadline", t.Deadline).Msg("reminder sent")
	}
}

// notify fans the message out to every active recipient. The flag is already
// committed by the time this runs: a failed or abandoned send is tolerated
// and never retried within the tick.
func (s *Sweeper) notify(ctx context.Context, t domain.Task, subject, body string) {
	recipients, err := s.resolver.Resolve(ctx, t)
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("failed to resolve recipients")
		return
	}

	for _, u := range recipients {
		if !u.IsActive {
			continue
		}
		if ok := s.sink.Send(ctx, u.Email, subject, body); !ok {
			log.Warn().Str("to", u.Email).Str("task_id", t.ID).Msg("notification delivery failed")
		}
	}
}

func (s *Sweeper) workspaceName(ctx context.Context, t domain.Task) string {
	ws, err := s.store.GetWorkspace(ctx, t.WorkspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspace_id", t.WorkspaceID).Msg("failed to load workspace")
		return t.WorkspaceID
	}
	return ws.Name
}
