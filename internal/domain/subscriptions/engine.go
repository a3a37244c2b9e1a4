package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	OpCreate     = "create"
	OpGet        = "get"
	OpList       = "list"
	OpUpdate     = "update"
	OpChangePlan = "change_plan"
	OpCancel     = "cancel"
	OpReactivate = "reactivate"
	OpPause      = "pause"
	OpResume     = "resume"
	OpSync       = "provider_sync"
	OpRollover   = "rollover"
)

// errUnchanged short-circuits a transition that would write identical state.
var errUnchanged = errors.New("unchanged")

type Config struct {
	Store       Store
	Invalidator Invalidator
	Plans       PlanCatalog // optional
	Observer    Observer    // optional
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Engine applies lifecycle transitions. It holds no per-subscription state;
// every call reads, transitions and conditionally writes one row.
type Engine struct {
	store       Store
	invalidator Invalidator
	plans       PlanCatalog
	observer    Observer
	log         zerolog.Logger
	now         func() time.Time
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:       cfg.Store,
		invalidator: cfg.Invalidator,
		plans:       cfg.Plans,
		observer:    cfg.Observer,
		log:         cfg.Logger.With().Str("component", "subscriptions").Logger(),
		now:         cfg.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.invalidator == nil {
		e.invalidator = LogInvalidator{Logger: e.log}
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// Create opens a new subscription for a tenant. Only an administrator of the
// target salon may do so, and the caller becomes the owner.
func (e *Engine) Create(ctx context.Context, caller Caller, req CreateRequest) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpCreate, caller, "", start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	if !caller.IsTenantAdmin(req.SalonID) {
		return nil, errUnauthorized()
	}
	if err := e.checkPlan(ctx, req.PlanID); err != nil {
		return nil, err
	}

	live, err := e.store.List(ctx, Filter{SalonID: req.SalonID, Statuses: LiveStatuses, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(live) > 0 {
		return nil, ErrDuplicateLive
	}

	now := e.clock()
	sub = &Subscription{
		ID:                 uuid.NewString(),
		SalonID:            req.SalonID,
		CustomerID:         caller.UserID,
		PlanID:             req.PlanID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.TrialDays != nil && *req.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, *req.TrialDays)
		sub.TrialEnd = &trialEnd
		sub.Status = StatusTrialing
	}
	sub.SetMeta(Metadata{Extra: dropNil(req.Metadata)})

	if err := e.store.Insert(ctx, sub); err != nil {
		return nil, err
	}
	e.emit(ctx, sub)
	return sub, nil
}

func (e *Engine) Get(ctx context.Context, caller Caller, id string) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpGet, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	sub, err = e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, _ := Authorize(sub, caller); !ok {
		return nil, errUnauthorized()
	}
	return sub, nil
}

// List returns the caller's own subscriptions, or a salon's when the caller
// administers it. Without a salon or customer filter it lists the caller's own.
func (e *Engine) List(ctx context.Context, caller Caller, req ListRequest) (subs []Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpList, caller, "", start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	if req.SalonID == "" && req.CustomerID == "" {
		req.CustomerID = caller.UserID
	}
	allowed := req.CustomerID == caller.UserID ||
		(req.SalonID != "" && caller.IsTenantAdmin(req.SalonID))
	if !allowed {
		return nil, errUnauthorized()
	}
	return e.store.List(ctx, req.Filter())
}

// ListAll is the platform-administrator listing; route guards decide who
// reaches it.
func (e *Engine) ListAll(ctx context.Context, req ListRequest) (subs []Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpList, Caller{}, "", start, err) }()

	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	return e.store.List(ctx, req.Filter())
}

// Update patches cancel_at_period_end and caller metadata only.
func (e *Engine) Update(ctx context.Context, caller Caller, id string, req UpdateRequest) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpUpdate, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, caller, id, func(s *Subscription, now time.Time) error {
		if req.Empty() {
			return errUnchanged
		}
		m := s.Meta()
		if req.CancelAtPeriodEnd != nil {
			flag := *req.CancelAtPeriodEnd
			if flag && s.Status == StatusCancelled {
				return newError(CodeInvalidStatus, "Subscription is already cancelled")
			}
			switch {
			case flag && !s.CancelAtPeriodEnd:
				m.Cancellation = &CancellationInfo{At: now, By: caller.UserID, Reason: DefaultCancelReason}
			case !flag && s.CancelAtPeriodEnd:
				m.Cancellation = nil
			}
			s.CancelAtPeriodEnd = flag
		}
		if len(req.Metadata) > 0 {
			for k, v := range req.Metadata {
				if v == nil {
					delete(m.Extra, k)
					continue
				}
				if m.Extra == nil {
					m.Extra = make(map[string]any)
				}
				m.Extra[k] = v
			}
		}
		s.SetMeta(m)
		return nil
	})
}

// ChangePlan swaps the plan and records where it came from. Proration is
// left to the billing provider.
func (e *Engine) ChangePlan(ctx context.Context, caller Caller, id string, req ChangePlanRequest) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpChangePlan, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	if err := e.checkPlan(ctx, req.PlanID); err != nil {
		return nil, err
	}
	return e.transition(ctx, caller, id, func(s *Subscription, now time.Time) error {
		if s.Status == StatusCancelled {
			return newError(CodeInvalidStatus, "Cannot change the plan of a cancelled subscription")
		}
		if s.PlanID == req.PlanID {
			return errUnchanged
		}
		m := s.Meta()
		m.PlanChange = &PlanChangeInfo{
			PreviousPlanID: s.PlanID,
			ChangedAt:      now,
			Prorated:       req.Prorated(),
		}
		s.SetMeta(m)
		s.PlanID = req.PlanID
		return nil
	})
}

// Cancel ends the subscription now, or flags it to end when the period lapses.
// Either way the caller and reason are recorded in metadata.
func (e *Engine) Cancel(ctx context.Context, caller Caller, id string, req CancelRequest) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpCancel, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, caller, id, func(s *Subscription, now time.Time) error {
		if s.Status == StatusCancelled {
			return newError(CodeInvalidStatus, "Subscription is already cancelled")
		}
		if req.Immediately {
			s.Status = StatusCancelled
		} else {
			if s.CancelAtPeriodEnd {
				return errUnchanged
			}
			s.CancelAtPeriodEnd = true
		}
		m := s.Meta()
		m.Cancellation = &CancellationInfo{At: now, By: caller.UserID, Reason: req.reason()}
		s.SetMeta(m)
		return nil
	})
}

// Reactivate withdraws a pending end-of-period cancellation.
func (e *Engine) Reactivate(ctx context.Context, caller Caller, id string) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpReactivate, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	return e.transition(ctx, caller, id, func(s *Subscription, _ time.Time) error {
		if s.Status == StatusCancelled {
			return newError(CodeInvalidStatus, "A cancelled subscription cannot be reactivated, create a new one")
		}
		if !s.CancelAtPeriodEnd {
			return newError(CodeNotCancelling, "Subscription is not scheduled for cancellation")
		}
		s.CancelAtPeriodEnd = false
		m := s.Meta()
		m.Cancellation = nil
		s.SetMeta(m)
		return nil
	})
}

// Pause annotates the subscription; status is untouched. Pausing an already
// paused subscription moves pause_until.
func (e *Engine) Pause(ctx context.Context, caller Caller, id string, req PauseRequest) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpPause, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	req, err = req.Validate()
	if err != nil {
		return nil, err
	}
	until := req.PauseUntil.UTC()
	return e.transition(ctx, caller, id, func(s *Subscription, now time.Time) error {
		if s.Status == StatusCancelled {
			return newError(CodeInvalidStatus, "A cancelled subscription cannot be paused")
		}
		if !until.After(now) {
			return newError(CodeInvalidDate, "pause_until must be in the future")
		}
		m := s.Meta()
		m.Pause = &PauseInfo{Until: until, PausedAt: now}
		s.SetMeta(m)
		return nil
	})
}

func (e *Engine) Resume(ctx context.Context, caller Caller, id string) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpResume, caller, id, start, err) }()

	if !caller.Authenticated() {
		return nil, errAuthRequired()
	}
	return e.transition(ctx, caller, id, func(s *Subscription, now time.Time) error {
		m := s.Meta()
		if m.Pause == nil {
			return newError(CodeNotPaused, "Subscription is not paused")
		}
		m.Pause = nil
		m.ResumedAt = &now
		s.SetMeta(m)
		return nil
	})
}

// transition runs fetch, authorize, apply, conditional write and invalidate
// for an existing subscription. apply mutates a copy.
func (e *Engine) transition(ctx context.Context, caller Caller, id string, apply func(s *Subscription, now time.Time) error) (*Subscription, error) {
	cur, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, basis := Authorize(cur, caller)
	if !ok {
		return nil, errUnauthorized()
	}

	now := e.clock()
	next := cur.Clone()
	if err := apply(next, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return cur, nil
		}
		return nil, err
	}
	next.UpdatedAt = now

	if err := e.store.Update(ctx, next, cur.Version); err != nil {
		return nil, err
	}
	e.logger(ctx).Debug().
		Str("subscription_id", id).
		Str("caller_id", caller.UserID).
		Str("basis", string(basis)).
		Str("status", string(next.Status)).
		Msg("subscription updated")
	e.emit(ctx, next)
	return next, nil
}

func (e *Engine) checkPlan(ctx context.Context, planID string) error {
	if e.plans == nil {
		return nil
	}
	ok, err := e.plans.PlanExists(ctx, planID)
	if err != nil {
		return err
	}
	if !ok {
		return errValidation([]FieldError{{Field: "plan_id", Message: "unknown plan"}})
	}
	return nil
}

// emit signals stale views. The write already happened, so a failure here is
// logged and swallowed, and caller cancellation does not stop it.
func (e *Engine) emit(ctx context.Context, sub *Subscription) {
	sig := Signal{SubscriptionID: sub.ID, Keys: InvalidationKeys(sub), At: e.clock()}
	if err := e.invalidator.Invalidate(context.WithoutCancel(ctx), sig); err != nil {
		e.logger(ctx).Warn().Err(err).
			Str("subscription_id", sub.ID).
			Strs("keys", sig.Keys).
			Msg("failed to emit invalidation")
	}
}

// finish classifies err, logs it at the right severity and records metrics.
func (e *Engine) finish(ctx context.Context, op string, caller Caller, id string, start time.Time, err error) error {
	if err == nil {
		e.observe(op, "OK", start)
		return nil
	}

	var de *Error
	switch {
	case errors.As(err, &de):
	case errors.Is(err, ErrNotFound):
		de = errNotFound()
	case errors.Is(err, ErrDuplicateLive):
		de = newError(CodeDuplicateSubscription, "This salon already has an active subscription")
	default:
		de = errOperationFailed(err)
	}

	log := e.logger(ctx)
	ev := log.Debug()
	msg := "operation rejected"
	if de.Code == CodeOperationFailed {
		if errors.Is(err, ErrConflict) {
			ev = log.Warn()
			msg = "concurrent modification"
		} else {
			ev = log.Error()
			msg = "operation failed"
		}
		ev = ev.Err(de.Err).Time("timestamp", e.clock())
	}
	ev.Str("operation", op).
		Str("subscription_id", id).
		Str("caller_id", caller.UserID).
		Str("code", string(de.Code)).
		Msg(msg)

	e.observe(op, de.Code, start)
	return de
}

// logger prefers the request-scoped logger carried by ctx so failures keep
// their request id.
func (e *Engine) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l == zerolog.DefaultContextLogger || l.GetLevel() == zerolog.Disabled {
		return &e.log
	}
	scoped := l.With().Str("component", "subscriptions").Logger()
	return &scoped
}

func (e *Engine) observe(op string, code Code, start time.Time) {
	if e.observer != nil {
		e.observer.Observe(op, code, time.Since(start))
	}
}

func dropNil(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
