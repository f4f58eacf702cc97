// Package fanout drives fetch→render→send across a set of recipients and
// writes one audit record per recipient per run. A single recipient's
// failure never aborts the run.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// UserStore is the slice of storage the orchestrator needs: recipient
// resolution plus the append-only audit log.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	AppendDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error
}

// EventSource fetches a user's events over a day window.
type EventSource interface {
	FetchEvents(ctx context.Context, userID int64, windowDays int) ([]domain.Event, error)
}

// TokenSource resolves the recipient credential used for the send leg.
type TokenSource interface {
	GetValidCredential(ctx context.Context, userID int64) (domain.Credential, error)
}

// Renderer produces the summary document; it never fails.
type Renderer interface {
	Render(ctx context.Context, events []domain.Event, displayName string, windowDays int, now time.Time) string
}

// Sender delivers one rendered document.
type Sender interface {
	Send(ctx context.Context, to, subject, html string, cred domain.Credential) error
}

// Params selects recipients and the fetch window for one run.
type Params struct {
	// UserIDs, when non-empty, is used verbatim. Otherwise all users are
	// targeted, filtered by IncludeAdmins.
	UserIDs []int64
	// BroadcastFrom, when non-zero, switches to broadcast mode: this
	// user's events are fetched once and sent to every recipient.
	BroadcastFrom int64
	IncludeAdmins bool
	// WindowDays > 0 overrides every recipient's own preference; zero
	// means "use each user's stored fetch window".
	WindowDays int
}

// Result aggregates one run. Total == Success + Failed always holds.
type Result struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Orchestrator coordinates the delivery pipeline.
type Orchestrator struct {
	store  UserStore
	events EventSource
	tokens TokenSource
	render Renderer
	sender Sender
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time
}

// New wires the orchestrator's collaborators.
func New(store UserStore, events EventSource, tokens TokenSource, render Renderer, sender Sender, loc *time.Location, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		events: events,
		tokens: tokens,
		render: render,
		sender: sender,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// Run executes one fan-out. Recipients are processed sequentially; failures
// are isolated per recipient and reflected in exactly one audit record each.
// The only exception is the broadcast short-circuit: when the broadcast
// source fetch fails, the run aborts with every recipient counted failed and
// no per-recipient records written.
func (o *Orchestrator) Run(ctx context.Context, p Params) (Result, error) {
	recipients, err := o.resolveRecipients(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		o.log.Info("fanout run with no recipients")
		return Result{}, nil
	}

	mode := "personalized"
	var (
		broadcastEvents []domain.Event
		broadcastName   string
	)
	if p.BroadcastFrom != 0 {
		mode = "broadcast"
		source, err := o.store.GetUser(ctx, p.BroadcastFrom)
		if err != nil {
			return Result{}, fmt.Errorf("broadcast source %d: %w", p.BroadcastFrom, err)
		}
		window := p.WindowDays
		if window <= 0 {
			window = source.Window()
		}
		broadcastEvents, err = o.events.FetchEvents(ctx, source.ID, window)
		if err != nil {
			// Short-circuit: the shared fetch failed, nobody gets an
			// individual attempt or audit record.
			o.log.Error("broadcast source fetch failed, aborting run",
				zap.Int64("sourceID", source.ID), zap.Error(err))
			n := len(recipients)
			return Result{Total: n, Success: 0, Failed: n}, nil
		}
		broadcastName = source.Name + "'s Schedule"
	}

	o.log.Info("fanout run starting",
		zap.String("mode", mode),
		zap.Int("recipients", len(recipients)),
		zap.Int("windowDays", p.WindowDays),
		zap.Bool("includeAdmins", p.IncludeAdmins),
	)

	res := Result{Total: len(recipients)}
	for i := range recipients {
		u := &recipients[i]
		window := p.WindowDays
		if window <= 0 {
			window = u.Window()
		}

		outcome := o.processRecipient(ctx, u, window, broadcastEvents, broadcastName, p.BroadcastFrom != 0)
		o.audit(ctx, u, window, outcome)
		if outcome.err == nil {
			res.Success++
		} else {
			res.Failed++
		}
	}

	o.log.Info("fanout run finished",
		zap.Int("total", res.Total),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (o *Orchestrator) resolveRecipients(ctx context.Context, p Params) ([]domain.User, error) {
	if len(p.UserIDs) > 0 {
		return o.store.GetUsersByIDs(ctx, p.UserIDs)
	}
	users, err := o.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if p.IncludeAdmins {
		return users, nil
	}
	filtered := users[:0]
	for _, u := range users {
		if !u.IsAdmin() {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}

// attemptOutcome is what one recipient's processing produced, captured so a
// single audit record can be written after the terminal outcome is known.
type attemptOutcome struct {
	subject     string
	eventsCount int
	err         error
}

// processRecipient runs fetch→render→send for one recipient. Panics are
// recovered here so one bad recipient cannot take down the run.
func (o *Orchestrator) processRecipient(ctx context.Context, u *domain.User, window int, broadcastEvents []domain.Event, broadcastName string, broadcast bool) (out attemptOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic while processing recipient",
				zap.Int64("userID", u.ID), zap.Any("panic", r))
			out.err = fmt.Errorf("panic: %v", r)
		}
	}()

	now := o.now().In(o.loc)
	if broadcast {
		out.subject = "Team Calendar Update - " + now.Format("January 2, 2006")
	} else {
		out.subject = "Your Daily Calendar Summary - " + now.Format("January 2, 2006")
	}

	var (
		events      []domain.Event
		summaryName string
	)
	if broadcast {
		events = broadcastEvents
		summaryName = broadcastName
	} else {
		var err error
		events, err = o.events.FetchEvents(ctx, u.ID, window)
		if err != nil {
			o.log.Warn("event fetch failed",
				zap.Int64("userID", u.ID), zap.Error(err))
			out.err = err
			return out
		}
		summaryName = u.Name
	}
	out.eventsCount = len(events)

	html := o.render.Render(ctx, events, summaryName, window, now)

	cred, err := o.tokens.GetValidCredential(ctx, u.ID)
	if err != nil {
		o.log.Warn("no valid credential for delivery",
			zap.Int64("userID", u.ID), zap.Error(err))
		out.err = err
		return out
	}

	if err := o.sender.Send(ctx, u.Email, out.subject, html, cred); err != nil {
		o.log.Warn("delivery failed",
			zap.Int64("userID", u.ID), zap.Error(err))
		out.err = err
		return out
	}

	return out
}

// audit writes the recipient's single delivery record. A failed write is
// logged but does not change the run outcome.
func (o *Orchestrator) audit(ctx context.Context, u *domain.User, window int, out attemptOutcome) {
	rec := &domain.DeliveryRecord{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		UserEmail:   u.Email,
		UserName:    u.Name,
		Subject:     out.subject,
		Status:      domain.DeliverySuccess,
		EventsCount: out.eventsCount,
		FetchDays:   window,
		SentAt:      o.now().UTC(),
	}
	if out.err != nil {
		rec.Status = domain.DeliveryFailed
		rec.Error = out.err.Error()
	}
	if err := o.store.AppendDeliveryRecord(ctx, rec); err != nil {
		o.log.Error("append delivery record failed",
			zap.Int64("userID", u.ID), zap.Error(err))
	}
}
