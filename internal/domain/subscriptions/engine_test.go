package subscriptions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/infra/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	salonA = "5b0f7c1e-8a44-4d7e-9c55-0a1f3e2b9d10"
	salonB = "9e3d2c1b-1f2a-4b5c-8d7e-6f5a4b3c2d1e"
)

var (
	owner    = subscriptions.Caller{UserID: "owner-1", TenantID: salonA, Role: "owner"}
	manager  = subscriptions.Caller{UserID: "manager-1", TenantID: salonA, Role: "manager"}
	staff    = subscriptions.Caller{UserID: "staff-1", TenantID: salonA, Role: "staff"}
	outsider = subscriptions.Caller{UserID: "other-1", TenantID: salonB, Role: "admin"}
	nobody   = subscriptions.Caller{}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingInvalidator struct {
	mu      sync.Mutex
	signals []subscriptions.Signal
	err     error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, sig subscriptions.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return r.err
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

type recordingObserver struct {
	mu    sync.Mutex
	codes map[string][]subscriptions.Code
}

func (o *recordingObserver) Observe(op string, code subscriptions.Code, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.codes == nil {
		o.codes = make(map[string][]subscriptions.Code)
	}
	o.codes[op] = append(o.codes[op], code)
}

type fixture struct {
	engine   *subscriptions.Engine
	store    *memstore.Store
	clock    *clock
	inval    *recordingInvalidator
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		clock:    &clock{now: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)},
		inval:    &recordingInvalidator{},
		observer: &recordingObserver{},
	}
	f.engine = subscriptions.NewEngine(subscriptions.Config{
		Store:       f.store,
		Invalidator: f.inval,
		Plans:       memstore.NewPlans("P1", "P2", "P3"),
		Observer:    f.observer,
		Logger:      zerolog.Nop(),
		Now:         f.clock.Now,
	})
	return f
}

func (f *fixture) create(t *testing.T, caller subscriptions.Caller, salon string) *subscriptions.Subscription {
	t.Helper()
	sub, err := f.engine.Create(context.Background(), caller, subscriptions.CreateRequest{SalonID: salon, PlanID: "P1"})
	require.NoError(t, err)
	return sub
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestScenarioCreateCancelReactivateTerminate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	sub, err := f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, owner.UserID, sub.CustomerID)
	assert.True(t, sub.CurrentPeriodStart.Equal(now))
	assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)))
	assert.Nil(t, sub.TrialEnd)

	sub, err = f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)

	sub, err = f.engine.Reactivate(ctx, owner, sub.ID)
	require.NoError(t, err)
	assert.False(t, sub.CancelAtPeriodEnd)

	sub, err = f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{Immediately: true})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCancelled, sub.Status)

	_, err = f.engine.ChangePlan(ctx, owner, sub.ID, subscriptions.ChangePlanRequest{PlanID: "P2"})
	res := subscriptions.Fail(err)
	assert.False(t, res.Success)
	assert.Equal(t, subscriptions.CodeInvalidStatus, res.Code)
}

func TestCreateWithTrial(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	sub, err := f.engine.Create(context.Background(), owner, subscriptions.CreateRequest{
		SalonID:   salonA,
		PlanID:    "P1",
		TrialDays: intPtr(14),
		Metadata:  map[string]any{"referrer": "<b>fair</b>", "drop": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.True(t, sub.TrialEnd.Equal(now.AddDate(0, 0, 14)))
	assert.Equal(t, map[string]any{"referrer": "fair"}, sub.Meta().Extra)
}

func TestCreateZeroTrialDaysIsActive(t *testing.T) {
	f := newFixture(t)
	sub, err := f.engine.Create(context.Background(), owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1", TrialDays: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.Nil(t, sub.TrialEnd)
}

func TestCreateRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Create(ctx, nobody, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
	assert.Equal(t, subscriptions.CodeAuthRequired, subscriptions.CodeOf(err))

	_, err = f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: "not-a-uuid", PlanID: ""})
	require.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
	fields := subscriptions.Fail(err).FieldErrors
	assert.Len(t, fields, 2)

	_, err = f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1", TrialDays: intPtr(-1)})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))

	_, err = f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "GOLD"})
	require.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
	assert.Equal(t, "plan_id", subscriptions.Fail(err).FieldErrors[0].Field)

	_, err = f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1", Metadata: map[string]any{"paused": true}})
	require.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
	assert.Equal(t, "metadata.paused", subscriptions.Fail(err).FieldErrors[0].Field)

	_, err = f.engine.Create(ctx, staff, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err))

	_, err = f.engine.Create(ctx, outsider, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err))

	assert.Zero(t, f.inval.count(), "rejected operations emit nothing")
}

func TestSingleLivePerSalon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.create(t, owner, salonA)

	_, err := f.engine.Create(ctx, manager, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P2", TrialDays: intPtr(7)})
	res := subscriptions.Fail(err)
	assert.Equal(t, subscriptions.CodeDuplicateSubscription, res.Code)
	assert.Equal(t, "This salon already has an active subscription", res.Error)

	// A past_due subscription does not occupy the slot.
	cur, err := f.store.Get(ctx, first.ID)
	require.NoError(t, err)
	cur.Status = subscriptions.StatusPastDue
	require.NoError(t, f.store.Update(ctx, cur, cur.Version))

	second, err := f.engine.Create(ctx, manager, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P2"})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, second.Status)

	live, err := f.store.List(ctx, subscriptions.Filter{SalonID: salonA, Statuses: subscriptions.LiveStatuses})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestConcurrentCreatesLeaveOneLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, subscriptions.CodeDuplicateSubscription, subscriptions.CodeOf(err))
	}
	assert.Equal(t, 1, ok)
}

func TestPeriodAlwaysAfterStart(t *testing.T) {
	f := newFixture(t)
	starts := []time.Time{
		time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC),
	}
	for i, start := range starts {
		f.clock.now = start
		salon := []string{salonA, salonB, "0d9c8b7a-6f5e-4d3c-2b1a-0f9e8d7c6b5a"}[i]
		caller := subscriptions.Caller{UserID: "u", TenantID: salon, Role: "admin"}
		sub := f.create(t, caller, salon)
		assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart), start)
	}
}

func TestCancelAtPeriodEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	first, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	require.NoError(t, err)
	emitted := f.inval.count()

	second, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	require.NoError(t, err)
	assert.True(t, first.CancelAtPeriodEnd)
	assert.True(t, second.CancelAtPeriodEnd)
	assert.Equal(t, emitted, f.inval.count(), "no-op cancel writes nothing")
}

func TestCancelCancelledIsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	_, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{Immediately: true})
	require.NoError(t, err)

	for _, req := range []subscriptions.CancelRequest{{}, {Immediately: true}} {
		_, err = f.engine.Cancel(ctx, owner, sub.ID, req)
		assert.Equal(t, subscriptions.CodeInvalidStatus, subscriptions.CodeOf(err))
	}
}

func TestCancelRecordsProvenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)
	now := f.clock.Now()

	flagged, err := f.engine.Cancel(ctx, manager, sub.ID, subscriptions.CancelRequest{Reason: "  <i>moving</i> to another app "})
	require.NoError(t, err)
	c := flagged.Meta().Cancellation
	require.NotNil(t, c)
	assert.Equal(t, manager.UserID, c.By)
	assert.Equal(t, "moving to another app", c.Reason)
	assert.True(t, c.At.Equal(now))

	raw, err := json.Marshal(flagged.Metadata)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, manager.UserID, flat["cancelled_by"])
	assert.Equal(t, "moving to another app", flat["cancel_reason"])
	assert.Contains(t, flat, "cancelled_at")

	reactivated, err := f.engine.Reactivate(ctx, owner, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, reactivated.Meta().Cancellation)

	f.clock.Advance(time.Hour)
	ended, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{Immediately: true})
	require.NoError(t, err)
	c = ended.Meta().Cancellation
	require.NotNil(t, c)
	assert.Equal(t, owner.UserID, c.By)
	assert.Equal(t, subscriptions.DefaultCancelReason, c.Reason)
	assert.True(t, c.At.Equal(now.Add(time.Hour)))
}

func TestCancelReasonIsBounded(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	_, err := f.engine.Cancel(context.Background(), owner, sub.ID, subscriptions.CancelRequest{Reason: string(long)})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))

	got, err := f.store.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, got.CancelAtPeriodEnd)
}

func TestUpdateFlagTracksCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	flagged, err := f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{CancelAtPeriodEnd: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, flagged.Meta().Cancellation)
	assert.Equal(t, owner.UserID, flagged.Meta().Cancellation.By)

	cleared, err := f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{CancelAtPeriodEnd: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, cleared.Meta().Cancellation)

	_, err = f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{Metadata: map[string]any{"cancel_reason": "x"}})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
}

func TestReactivateRequiresPendingCancel(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	_, err := f.engine.Reactivate(context.Background(), owner, sub.ID)
	assert.Equal(t, subscriptions.CodeNotCancelling, subscriptions.CodeOf(err))
}

func TestTerminalCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	_, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{Immediately: true})
	require.NoError(t, err)

	_, err = f.engine.ChangePlan(ctx, owner, sub.ID, subscriptions.ChangePlanRequest{PlanID: "P2"})
	assert.Equal(t, subscriptions.CodeInvalidStatus, subscriptions.CodeOf(err))
	_, err = f.engine.Reactivate(ctx, owner, sub.ID)
	assert.Equal(t, subscriptions.CodeInvalidStatus, subscriptions.CodeOf(err))
	_, err = f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: ptrTime(f.clock.Now().Add(time.Hour))})
	assert.Equal(t, subscriptions.CodeInvalidStatus, subscriptions.CodeOf(err))
	_, err = f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{CancelAtPeriodEnd: boolPtr(true)})
	assert.Equal(t, subscriptions.CodeInvalidStatus, subscriptions.CodeOf(err))
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestChangePlanRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)
	f.clock.Advance(time.Hour)

	changed, err := f.engine.ChangePlan(ctx, manager, sub.ID, subscriptions.ChangePlanRequest{PlanID: "P2", Prorate: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "P2", changed.PlanID)
	assert.Equal(t, sub.Status, changed.Status)
	assert.True(t, changed.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd))

	pc := changed.Meta().PlanChange
	require.NotNil(t, pc)
	assert.Equal(t, "P1", pc.PreviousPlanID)
	assert.False(t, pc.Prorated)
	assert.True(t, pc.ChangedAt.Equal(f.clock.Now()))

	raw, err := json.Marshal(changed.Metadata)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "P1", flat["previous_plan_id"])
	assert.Equal(t, false, flat["prorated"])
	assert.Contains(t, flat, "plan_changed_at")

	again, err := f.engine.ChangePlan(ctx, manager, sub.ID, subscriptions.ChangePlanRequest{PlanID: "P3"})
	require.NoError(t, err)
	assert.True(t, again.Meta().PlanChange.Prorated, "prorate defaults to true")

	_, err = f.engine.ChangePlan(ctx, manager, sub.ID, subscriptions.ChangePlanRequest{PlanID: "GOLD"})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
}

func TestPauseResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)
	_, err := f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{Metadata: map[string]any{"note": "keep"}})
	require.NoError(t, err)

	until := f.clock.Now().Add(72 * time.Hour)
	paused, err := f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: &until})
	require.NoError(t, err)
	assert.True(t, paused.Paused())
	assert.Equal(t, subscriptions.StatusActive, paused.Status, "pause leaves status alone")

	f.clock.Advance(time.Hour)
	resumed, err := f.engine.Resume(ctx, owner, sub.ID)
	require.NoError(t, err)
	assert.False(t, resumed.Paused())

	raw, err := json.Marshal(resumed.Metadata)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.NotContains(t, flat, "paused")
	assert.NotContains(t, flat, "pause_until")
	assert.NotContains(t, flat, "paused_at")
	assert.Contains(t, flat, "resumed_at")
	assert.Equal(t, "keep", flat["note"])

	_, err = f.engine.Resume(ctx, owner, sub.ID)
	assert.Equal(t, subscriptions.CodeNotPaused, subscriptions.CodeOf(err))
}

func TestPauseRejectsPastDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	past := f.clock.Now().Add(-time.Minute)
	_, err := f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: &past})
	assert.Equal(t, subscriptions.CodeInvalidDate, subscriptions.CodeOf(err))

	nowish := f.clock.Now()
	_, err = f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: &nowish})
	assert.Equal(t, subscriptions.CodeInvalidDate, subscriptions.CodeOf(err))

	_, err = f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
}

func TestRepauseMovesUntil(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	first := f.clock.Now().Add(24 * time.Hour)
	_, err := f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: &first})
	require.NoError(t, err)

	later := f.clock.Now().Add(48 * time.Hour)
	paused, err := f.engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: &later})
	require.NoError(t, err)
	assert.True(t, paused.Meta().Pause.Until.Equal(later))
}

func TestUpdatePatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	updated, err := f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{
		CancelAtPeriodEnd: boolPtr(true),
		Metadata:          map[string]any{"color": "teal", "seats": 3},
	})
	require.NoError(t, err)
	assert.True(t, updated.CancelAtPeriodEnd)
	assert.Equal(t, "teal", updated.Meta().Extra["color"])

	updated, err = f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{Metadata: map[string]any{"color": nil}})
	require.NoError(t, err)
	assert.NotContains(t, updated.Meta().Extra, "color")
	assert.Contains(t, updated.Meta().Extra, "seats")

	emitted := f.inval.count()
	same, err := f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{})
	require.NoError(t, err)
	assert.Equal(t, updated.ID, same.ID)
	assert.Equal(t, emitted, f.inval.count())

	_, err = f.engine.Update(ctx, owner, sub.ID, subscriptions.UpdateRequest{Metadata: map[string]any{"pause_until": "2030-01-01"}})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))
}

func TestAuthorizationBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)
	until := f.clock.Now().Add(time.Hour)

	mutations := map[string]func(subscriptions.Caller) error{
		"update": func(c subscriptions.Caller) error {
			_, err := f.engine.Update(ctx, c, sub.ID, subscriptions.UpdateRequest{CancelAtPeriodEnd: boolPtr(true)})
			return err
		},
		"change_plan": func(c subscriptions.Caller) error {
			_, err := f.engine.ChangePlan(ctx, c, sub.ID, subscriptions.ChangePlanRequest{PlanID: "P2"})
			return err
		},
		"cancel": func(c subscriptions.Caller) error {
			_, err := f.engine.Cancel(ctx, c, sub.ID, subscriptions.CancelRequest{Immediately: true})
			return err
		},
		"reactivate": func(c subscriptions.Caller) error {
			_, err := f.engine.Reactivate(ctx, c, sub.ID)
			return err
		},
		"pause": func(c subscriptions.Caller) error {
			_, err := f.engine.Pause(ctx, c, sub.ID, subscriptions.PauseRequest{PauseUntil: &until})
			return err
		},
		"resume": func(c subscriptions.Caller) error {
			_, err := f.engine.Resume(ctx, c, sub.ID)
			return err
		},
	}

	strangers := []subscriptions.Caller{
		staff,
		outsider,
		{UserID: "member-no-tenant"},
		{UserID: "wrong-tenant-admin", TenantID: salonB, Role: "owner"},
	}
	for name, mutate := range mutations {
		for _, c := range strangers {
			err := mutate(c)
			res := subscriptions.Fail(err)
			assert.Equal(t, subscriptions.CodeUnauthorized, res.Code, "%s as %s", name, c.UserID)
			assert.Equal(t, "You are not allowed to manage this subscription", res.Error)
		}
		assert.Equal(t, subscriptions.CodeAuthRequired, subscriptions.CodeOf(mutate(nobody)), name)
	}

	got, err := f.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version, "no rejected call wrote")
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	got, err := f.engine.Get(ctx, manager, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = f.engine.Get(ctx, outsider, sub.ID)
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err))
	_, err = f.engine.Get(ctx, owner, "missing")
	assert.Equal(t, subscriptions.CodeNotFound, subscriptions.CodeOf(err))

	mine, err := f.engine.List(ctx, owner, subscriptions.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	bySalon, err := f.engine.List(ctx, manager, subscriptions.ListRequest{SalonID: salonA})
	require.NoError(t, err)
	assert.Len(t, bySalon, 1)

	_, err = f.engine.List(ctx, outsider, subscriptions.ListRequest{SalonID: salonA})
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err))
	_, err = f.engine.List(ctx, staff, subscriptions.ListRequest{CustomerID: owner.UserID})
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err))
	_, err = f.engine.List(ctx, owner, subscriptions.ListRequest{Status: "frozen"})
	assert.Equal(t, subscriptions.CodeValidation, subscriptions.CodeOf(err))

	all, err := f.engine.ListAll(ctx, subscriptions.ListRequest{Status: "active"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInvalidationSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	require.Equal(t, 1, f.inval.count())
	sig := f.inval.signals[0]
	assert.Equal(t, sub.ID, sig.SubscriptionID)
	assert.ElementsMatch(t, []string{"subscriptions:salon:" + salonA, "subscriptions:customer:" + owner.UserID}, sig.Keys)

	// A broken transport never fails a write that already happened.
	f.inval.err = errors.New("redis down")
	cancelled, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	require.NoError(t, err)
	assert.True(t, cancelled.CancelAtPeriodEnd)
	assert.Equal(t, 2, f.inval.count())
}

func TestObserverRecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.create(t, owner, salonA)
	_, _ = f.engine.Resume(ctx, owner, sub.ID)

	assert.Equal(t, []subscriptions.Code{"OK"}, f.observer.codes[subscriptions.OpCreate])
	assert.Equal(t, []subscriptions.Code{subscriptions.CodeNotPaused}, f.observer.codes[subscriptions.OpResume])
}

type failingStore struct {
	*memstore.Store
	updateErr error
	listErr   error
}

func (s *failingStore) Update(ctx context.Context, sub *subscriptions.Subscription, v int) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.Store.Update(ctx, sub, v)
}

func (s *failingStore) List(ctx context.Context, f subscriptions.Filter) ([]subscriptions.Subscription, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.List(ctx, f)
}

func TestStoreFailuresAreOperationFailed(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memstore.New()}
	engine := subscriptions.NewEngine(subscriptions.Config{Store: store, Logger: zerolog.Nop()})

	sub, err := engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "anything"})
	require.NoError(t, err, "no catalog means any plan is accepted")

	store.updateErr = errors.New("connection reset by peer")
	_, err = engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	res := subscriptions.Fail(err)
	assert.Equal(t, subscriptions.CodeOperationFailed, res.Code)
	assert.NotContains(t, res.Error, "connection reset", "internal detail stays in logs")

	store.updateErr = subscriptions.ErrConflict
	_, err = engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{})
	res = subscriptions.Fail(err)
	assert.Equal(t, subscriptions.CodeOperationFailed, res.Code)
	assert.Contains(t, res.Error, "retry")
	assert.True(t, errors.Is(err, subscriptions.ErrConflict))

	store.listErr = errors.New("timeout")
	_, err = engine.Create(ctx, owner, subscriptions.CreateRequest{SalonID: salonB, PlanID: "x"})
	assert.Equal(t, subscriptions.CodeUnauthorized, subscriptions.CodeOf(err), "authz precedes the store")
	_, err = engine.List(ctx, owner, subscriptions.ListRequest{})
	assert.Equal(t, subscriptions.CodeOperationFailed, subscriptions.CodeOf(err))
}

func TestFailuresLogThroughRequestLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	store := &failingStore{Store: memstore.New()}
	engine := subscriptions.NewEngine(subscriptions.Config{Store: store, Logger: zerolog.New(&base)})

	sub, err := engine.Create(context.Background(), owner, subscriptions.CreateRequest{SalonID: salonA, PlanID: "P1"})
	require.NoError(t, err)

	reqLog := zerolog.New(&scoped).With().Str("request_id", "req-42").Logger()
	ctx := reqLog.WithContext(context.Background())

	store.updateErr = errors.New("disk full")
	_, err = engine.Pause(ctx, owner, sub.ID, subscriptions.PauseRequest{PauseUntil: timePtr(time.Now().Add(time.Hour))})
	require.Equal(t, subscriptions.CodeOperationFailed, subscriptions.CodeOf(err))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(scoped.Bytes()), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "pause", entry["operation"])
	assert.Equal(t, "subscriptions", entry["component"])
	assert.NotContains(t, base.String(), "disk full")

	_, err = engine.Pause(context.Background(), owner, sub.ID, subscriptions.PauseRequest{PauseUntil: timePtr(time.Now().Add(time.Hour))})
	require.Error(t, err)
	assert.Contains(t, base.String(), "disk full", "falls back to the engine logger")
}

func TestCancelledContextWritesNothing(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, owner, salonA)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Cancel(ctx, owner, sub.ID, subscriptions.CancelRequest{Immediately: true})
	assert.Equal(t, subscriptions.CodeOperationFailed, subscriptions.CodeOf(err))

	got, err := f.store.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, got.Status)
}
