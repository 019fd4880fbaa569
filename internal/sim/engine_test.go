package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkit/internal/attr"
)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithTokenGenerator(NewFixedGenerator(
		"run-1", "run-2", "run-3", "run-4",
	))}, opts...)
	return New(testDomain(t), opts...)
}

// addHandler returns a handler that adds the numeric payload to a
// property of the given instance, the shape of the greenhouse demo.
func addHandler(scope, name, property string) Handler {
	return HandlerFunc(func(ctx *Context, ev Event) error {
		in, err := ctx.Instances().Get(scope, name)
		if err != nil {
			return err
		}
		cur, err := in.Property(property)
		if err != nil {
			return err
		}
		cn, _ := attr.Number(cur)
		pn, _ := attr.Number(ev.Payload)
		return in.SetProperty(property, attr.Float(cn+pn))
	})
}

func TestEngine_GreenhouseExample(t *testing.T) {
	// Domain declares scope "greenhouse" and template "Greenhouse" with
	// defaults {temperature: 20, moisture: 50}. One temperature event
	// with payload 5 must leave temperature at 25 after one step.
	e := testEngine(t)

	_, err := e.Instantiate("greenhouse", "Greenhouse", "main", nil)
	require.NoError(t, err)

	e.RegisterHandler("temperature", addHandler("greenhouse", "main", "temperature"))

	_, err = e.Schedule(0, "temperature", attr.Int(5))
	require.NoError(t, err)

	ev, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, "temperature", ev.Kind)
	assert.Equal(t, Time(0), e.Now())

	in, err := e.Instances().Get("greenhouse", "main")
	require.NoError(t, err)
	v, err := in.Property("temperature")
	require.NoError(t, err)
	assert.True(t, attr.Equal(attr.Int(25), v), "got %v", v)
}

func TestEngine_StepOrdering(t *testing.T) {
	e := testEngine(t)

	var seen []string
	record := HandlerFunc(func(ctx *Context, ev Event) error {
		seen = append(seen, ev.Kind+"@"+ev.Time.String())
		return nil
	})
	for _, kind := range []string{"a", "b", "c"} {
		e.RegisterHandler(kind, record)
	}

	// Scheduled out of order; two events share t=10.
	_, err := e.Schedule(20, "c", nil)
	require.NoError(t, err)
	_, err = e.Schedule(10, "a", nil)
	require.NoError(t, err)
	_, err = e.Schedule(10, "b", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Step()
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a@10", "b@10", "c@20"}, seen,
		"time order first, then scheduling order for equal timestamps")
	assert.Equal(t, Time(20), e.Now())

	_, err = e.Step()
	assert.True(t, IsEmptyQueue(err))
}

func TestEngine_Determinism(t *testing.T) {
	trajectory := func() []string {
		e := testEngine(t)
		_, err := e.Instantiate("greenhouse", "Greenhouse", "main", nil)
		require.NoError(t, err)
		e.RegisterHandler("temperature", addHandler("greenhouse", "main", "temperature"))
		e.RegisterHandler("moisture", addHandler("greenhouse", "main", "moisture"))

		for _, ev := range []struct {
			t    Time
			kind string
			p    attr.Value
		}{
			{5, "temperature", attr.Int(2)},
			{5, "moisture", attr.Int(-3)},
			{1, "temperature", attr.Int(1)},
		} {
			_, err := e.Schedule(ev.t, ev.kind, ev.p)
			require.NoError(t, err)
		}

		var states []string
		for {
			if _, err := e.Step(); err != nil {
				break
			}
			in, err := e.Instances().Get("greenhouse", "main")
			require.NoError(t, err)
			tv, _ := in.Property("temperature")
			mv, _ := in.Property("moisture")
			states = append(states, tv.String()+"/"+mv.String())
		}
		return states
	}

	first := trajectory()
	second := trajectory()
	assert.Equal(t, first, second, "same schedule and handlers must yield identical trajectories")
	assert.Len(t, first, 3)
}

func TestEngine_FanOutRegistrationOrder(t *testing.T) {
	e := testEngine(t)

	var order []string
	for _, id := range []string{"first", "second", "third"} {
		id := id
		e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
			order = append(order, id)
			return nil
		}))
	}

	_, err := e.Schedule(0, "tick", nil)
	require.NoError(t, err)
	_, err = e.Step()
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, order,
		"all handlers run, in registration order")
}

func TestEngine_UnhandledKindDropped(t *testing.T) {
	e := testEngine(t)

	_, err := e.Schedule(0, "nobody-listens", nil)
	require.NoError(t, err)

	ev, err := e.Step()
	require.NoError(t, err, "an empty handler resolution is not an error")
	assert.Equal(t, "nobody-listens", ev.Kind)
	assert.Equal(t, 0, e.QueueLen())
}

func TestEngine_Recurrence(t *testing.T) {
	e := testEngine(t)

	// The handler reschedules itself 3 times: 4 dispatches total, at
	// t=0, 10, 20, 30.
	const reschedules = 3
	var times []Time
	e.RegisterHandler("heartbeat", HandlerFunc(func(ctx *Context, ev Event) error {
		times = append(times, ev.Time)
		if len(times) <= reschedules {
			_, err := ctx.Schedule(ev.Time+10, "heartbeat", ev.Payload)
			return err
		}
		return nil
	}))

	_, err := e.Schedule(0, "heartbeat", nil)
	require.NoError(t, err)

	steps, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reschedules+1, steps)
	assert.Equal(t, []Time{0, 10, 20, 30}, times)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_RunMaxSteps(t *testing.T) {
	e := testEngine(t)
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	for i := 0; i < 10; i++ {
		_, err := e.Schedule(Time(i), "tick", nil)
		require.NoError(t, err)
	}

	steps, err := e.Run(context.Background(), MaxSteps(3))
	require.NoError(t, err)
	assert.Equal(t, 3, steps, "at most 3 events processed")
	assert.Equal(t, 7, e.QueueLen(), "the rest remain queued")
}

func TestEngine_RunUntil(t *testing.T) {
	e := testEngine(t)
	var seen []Time
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		seen = append(seen, ev.Time)
		return nil
	}))

	for _, tt := range []Time{10, 20, 30, 40} {
		_, err := e.Schedule(tt, "tick", nil)
		require.NoError(t, err)
	}

	steps, err := e.Run(context.Background(), Until(25))
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Equal(t, []Time{10, 20}, seen)
	assert.Equal(t, Time(25), e.Now(), "virtual time advances to the bound")
	assert.Equal(t, 2, e.QueueLen())
}

func TestEngine_RunUntilAdvancesIdleClock(t *testing.T) {
	e := testEngine(t)

	steps, err := e.Run(context.Background(), Until(100))
	require.NoError(t, err)
	assert.Equal(t, 0, steps)
	assert.Equal(t, Time(100), e.Now(), "empty queue still advances to until")
}

func TestEngine_ScheduleBehindClockRejected(t *testing.T) {
	e := testEngine(t)
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	_, err := e.Schedule(10, "tick", nil)
	require.NoError(t, err)
	_, err = e.Step()
	require.NoError(t, err)

	_, err = e.Schedule(5, "tick", nil)
	require.Error(t, err)
	assert.True(t, IsInvalidEvent(err), "scheduling behind virtual time breaks consumption order")

	_, err = e.Schedule(-1, "tick", nil)
	assert.True(t, IsInvalidEvent(err))
}

func TestEngine_ScheduleNonFiniteRejected(t *testing.T) {
	// A NaN timestamp slips past ordinary comparisons (NaN < x is always
	// false), so it gets an explicit rejection; otherwise it would sit in
	// the queue unordered and eventually poison the virtual clock.
	e := testEngine(t)
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	for _, ts := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Schedule(Time(ts), "tick", nil)
		require.Error(t, err, "timestamp %v must be rejected", ts)
		assert.True(t, IsInvalidEvent(err))
	}
	assert.Equal(t, 0, e.QueueLen())

	// A reschedule that would land on a non-finite time is a no-op.
	seq, err := e.Schedule(10, "tick", nil)
	require.NoError(t, err)
	_, err = e.Reschedule(seq, Time(math.Inf(1)))
	require.Error(t, err)
	assert.True(t, IsInvalidEvent(err))

	pending := e.PendingEvents("")
	require.Len(t, pending, 1)
	assert.Equal(t, Time(10), pending[0].Time, "rejected reschedule leaves the original pending")

	// The clock stays finite and later scheduling still works.
	_, err = e.Schedule(20, "tick", nil)
	require.NoError(t, err)
	ev, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, Time(10), ev.Time)
}

func TestEngine_HaltOnError(t *testing.T) {
	e := testEngine(t)

	boom := errors.New("boom")
	e.RegisterHandler("bad", HandlerFunc(func(ctx *Context, ev Event) error { return boom }))
	e.RegisterHandler("good", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	_, err := e.Schedule(1, "bad", attr.String("payload"))
	require.NoError(t, err)
	_, err = e.Schedule(2, "good", nil)
	require.NoError(t, err)

	steps, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, steps)
	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, err, boom)

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "bad", herr.Event.Kind, "the offending event is attached")
	assert.Equal(t, attr.String("payload"), herr.Event.Payload)

	// Stopped is terminal.
	_, err = e.Step()
	assert.Equal(t, ErrCodeEngineStopped, CodeOf(err))
	_, err = e.Run(context.Background())
	assert.Equal(t, ErrCodeEngineStopped, CodeOf(err))
	_, err = e.Schedule(10, "good", nil)
	assert.Equal(t, ErrCodeEngineStopped, CodeOf(err))

	assert.Equal(t, err, e.HaltError(), "the halting error is retained")
}

func TestEngine_ContinueOnError(t *testing.T) {
	e := testEngine(t, WithErrorPolicy(ContinueOnError))

	var calls []string
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		calls = append(calls, "failing")
		return errors.New("boom")
	}))
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		calls = append(calls, "healthy")
		return nil
	}))

	_, err := e.Schedule(1, "tick", nil)
	require.NoError(t, err)
	_, err = e.Schedule(2, "tick", nil)
	require.NoError(t, err)

	steps, err := e.Run(context.Background())
	require.NoError(t, err, "continue-on-error surfaces nothing to the run")
	assert.Equal(t, 2, steps)
	assert.Equal(t, []string{"failing", "healthy", "failing", "healthy"}, calls,
		"later handlers and later events still run")
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_StopBetweenSteps(t *testing.T) {
	e := testEngine(t)

	var dispatched int
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		dispatched++
		e.Stop() // takes effect after this handler returns
		return nil
	}))

	for i := 0; i < 5; i++ {
		_, err := e.Schedule(Time(i), "tick", nil)
		require.NoError(t, err)
	}

	steps, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, steps, "stop is honored between steps, not mid-dispatch")
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, 4, e.QueueLen())
}

func TestEngine_ContextCancellation(t *testing.T) {
	e := testEngine(t)
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	_, err := e.Schedule(1, "tick", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, steps)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_ConcurrentScheduleDuringRun(t *testing.T) {
	// Schedule, Now, and State may be called from another goroutine while
	// the run loop drains; a handler blocks mid-dispatch so the external
	// calls provably overlap the run.
	e := testEngine(t)

	started := make(chan struct{})
	release := make(chan struct{})
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		if ev.Time == 0 {
			close(started)
			<-release
		}
		return nil
	}))

	for i := 0; i < 5; i++ {
		_, err := e.Schedule(Time(i), "tick", nil)
		require.NoError(t, err)
	}

	var steps int
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		steps, runErr = e.Run(context.Background())
	}()

	<-started
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, Time(0), e.Now())
	seq, err := e.Schedule(10, "tick", nil)
	require.NoError(t, err)
	assert.Positive(t, seq)

	close(release)
	<-done

	require.NoError(t, runErr)
	assert.Equal(t, 6, steps, "the externally scheduled event joins the same run")
	assert.Equal(t, Time(10), e.Now())
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_CancelPendingEvent(t *testing.T) {
	e := testEngine(t)
	var seen []Time
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		seen = append(seen, ev.Time)
		return nil
	}))

	_, err := e.Schedule(1, "tick", nil)
	require.NoError(t, err)
	seq, err := e.Schedule(2, "tick", nil)
	require.NoError(t, err)
	_, err = e.Schedule(3, "tick", nil)
	require.NoError(t, err)

	assert.True(t, e.Cancel(seq))

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Time{1, 3}, seen)
}

func TestEngine_Reschedule(t *testing.T) {
	e := testEngine(t)
	var seen []Time
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error {
		seen = append(seen, ev.Time)
		return nil
	}))

	seq, err := e.Schedule(10, "tick", attr.Int(1))
	require.NoError(t, err)
	_, err = e.Schedule(20, "tick", attr.Int(2))
	require.NoError(t, err)

	moved, err := e.Reschedule(seq, 15)
	require.NoError(t, err)
	assert.Equal(t, Time(25), moved.Time)
	assert.NotEqual(t, seq, moved.Seq, "rescheduling mints a fresh event")

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Time{20, 25}, seen)
}

func TestEngine_RescheduleUnknownSeq(t *testing.T) {
	e := testEngine(t)

	_, err := e.Reschedule(42, 10)
	require.Error(t, err)
	assert.True(t, IsInvalidEvent(err))
}

func TestEngine_RescheduleBehindClockIsNoOp(t *testing.T) {
	e := testEngine(t)
	e.RegisterHandler("tick", HandlerFunc(func(ctx *Context, ev Event) error { return nil }))

	_, err := e.Schedule(10, "tick", nil)
	require.NoError(t, err)
	_, err = e.Step()
	require.NoError(t, err)
	require.Equal(t, Time(10), e.Now())

	seq, err := e.Schedule(20, "tick", nil)
	require.NoError(t, err)

	_, err = e.Reschedule(seq, -15) // would land at t=5, behind the clock
	require.Error(t, err)
	assert.True(t, IsInvalidEvent(err))
	assert.Equal(t, 1, e.QueueLen(), "rejected reschedule leaves the original pending")

	pending := e.PendingEvents("")
	require.Len(t, pending, 1)
	assert.Equal(t, Time(20), pending[0].Time)
}

func TestEngine_PendingEvents(t *testing.T) {
	e := testEngine(t)

	_, err := e.Schedule(30, "light", attr.Int(3))
	require.NoError(t, err)
	_, err = e.Schedule(10, "temperature", attr.Int(1))
	require.NoError(t, err)
	_, err = e.Schedule(20, "moisture", attr.Int(2))
	require.NoError(t, err)

	all := e.PendingEvents("")
	require.Len(t, all, 3)
	assert.Equal(t, []string{"temperature", "moisture", "light"},
		[]string{all[0].Kind, all[1].Kind, all[2].Kind})

	light := e.PendingEvents("light")
	require.Len(t, light, 1)
	assert.Equal(t, Time(30), light[0].Time)
}

func TestEngine_HandlerSchedulesVisibleInSameRun(t *testing.T) {
	e := testEngine(t)

	var kinds []string
	e.RegisterHandler("seed", HandlerFunc(func(ctx *Context, ev Event) error {
		kinds = append(kinds, ev.Kind)
		_, err := ctx.Schedule(ev.Time, "cascade", nil)
		return err
	}))
	e.RegisterHandler("cascade", HandlerFunc(func(ctx *Context, ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	}))

	_, err := e.Schedule(5, "seed", nil)
	require.NoError(t, err)

	steps, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Equal(t, []string{"seed", "cascade"}, kinds,
		"events scheduled mid-run are drained by the same run loop")
}
