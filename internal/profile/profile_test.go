package profile

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

const tick = 250 * time.Millisecond

func ms(d time.Duration) clock.Millis { return clock.Millis(d.Milliseconds()) }

func TestSetpointInterpolation(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "Soak", StartTemp: 150, EndTemp: 180, MinDuration: 120 * time.Second, MaxDuration: 120 * time.Second},
	})
	p.StartReflow(0)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"start", 0, 150},
		{"midpoint", 60 * time.Second, 165},
		{"end", 120 * time.Second, 180},
		{"past end is clamped", 150 * time.Second, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Setpoint(ms(tt.elapsed)), 1e-9)
		})
	}
}

func TestSetpointHoldPhaseReturnsEndTemp(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "Peak", StartTemp: 180, EndTemp: 235, MinDuration: 70 * time.Second, MaxDuration: 120 * time.Second, HoldAtEndTemp: true},
	})
	p.StartReflow(1000)

	for _, at := range []clock.Millis{1000, 1001, 30000, 71000} {
		assert.Equal(t, 235.0, p.Setpoint(at))
	}
}

func TestSetpointZeroMinDurationIsEndTemp(t *testing.T) {
	p := New([]PhaseParams{{Name: "Jump", StartTemp: 20, EndTemp: 90, MaxDuration: time.Second}})
	p.StartReflow(0)

	assert.Equal(t, 90.0, p.Setpoint(0))
	assert.Equal(t, 0.0, p.FeedforwardSlope(0, 0))
}

func TestSetpointCompleteReturnsLastEndTemp(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "A", StartTemp: 0, EndTemp: 50, MinDuration: time.Second, MaxDuration: time.Second},
		{Name: "B", StartTemp: 50, EndTemp: 40, MinDuration: time.Second, MaxDuration: time.Second},
	})
	p.StartReflow(0)
	p.Update(0, 1000)
	p.Update(0, 2000)

	require.True(t, p.IsComplete())
	assert.Equal(t, 40.0, p.Setpoint(5000))
	assert.Equal(t, "Complete", p.PhaseName())
}

func TestPhaseSlope(t *testing.T) {
	tests := []struct {
		name  string
		phase PhaseParams
		want  float64
	}{
		{"cooling", PhaseParams{StartTemp: 200, EndTemp: 0, MinDuration: 90 * time.Second}, -2.22},
		{"soak ramp", PhaseParams{StartTemp: 150, EndTemp: 180, MinDuration: 120 * time.Second}, 0.25},
		{"zero length", PhaseParams{StartTemp: 150, EndTemp: 180}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ph := newPhase(tt.phase, DefaultAchievedRatio)
			assert.InDelta(t, tt.want, ph.Slope(), 0.005)
		})
	}
}

func TestFeedforwardSlopeLookahead(t *testing.T) {
	p := New(Default())
	p.StartReflow(0)

	tests := []struct {
		name      string
		now       time.Duration
		lookahead time.Duration
		want      float64
	}{
		{"inside preheat", 0, 10 * time.Second, 150.0 / 180.0},
		{"just before boundary", 0, 180*time.Second - time.Millisecond, 150.0 / 180.0},
		{"exact boundary prefers upcoming phase", 0, 180 * time.Second, 0.25},
		{"lookahead reaches peak", 170 * time.Second, 140 * time.Second, 55.0 / 70.0},
		{"beyond the end uses last phase", 400 * time.Second, 200 * time.Second, -220.0 / 90.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.FeedforwardSlope(ms(tt.now), tt.lookahead), 1e-9)
		})
	}
}

func TestUpdateMaxDurationEscapeValve(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "Ramp", StartTemp: 20, EndTemp: 200, MinDuration: 10 * time.Second, MaxDuration: 30 * time.Second},
		{Name: "Next", StartTemp: 200, EndTemp: 200, MinDuration: 10 * time.Second, MaxDuration: 10 * time.Second},
	})
	p.StartReflow(0)

	for at := clock.Millis(0); at < 30000; at += 250 {
		p.Update(25, at)
	}
	assert.False(t, p.Update(25, 29999))
	assert.Equal(t, PhaseIndex(0), p.CurrentPhase())

	assert.True(t, p.Update(25, 30000))
	assert.Equal(t, PhaseIndex(1), p.CurrentPhase())
	assert.True(t, p.Phase(0).Completed)
}

func TestUpdateMinDurationGuard(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "Ramp", StartTemp: 20, EndTemp: 100, MinDuration: 10 * time.Second, MaxDuration: 30 * time.Second},
		{Name: "Next", StartTemp: 100, EndTemp: 100, MinDuration: 10 * time.Second, MaxDuration: 10 * time.Second},
	})
	p.StartReflow(0)

	assert.False(t, p.Update(500, 0))
	assert.False(t, p.Update(500, 9999))
	assert.Equal(t, PhaseIndex(0), p.CurrentPhase())
	assert.True(t, p.Update(500, 10000))
	assert.Equal(t, PhaseIndex(1), p.CurrentPhase())
}

func TestUpdateAchievedThreshold(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "Ramp", StartTemp: 20, EndTemp: 100, MinDuration: 10 * time.Second, MaxDuration: 30 * time.Second},
	})
	p.StartReflow(0)

	assert.False(t, p.Update(97.9, 15000), "below 98% of end temperature")
	assert.True(t, p.Update(98, 15250))
	assert.True(t, p.IsComplete())
}

func TestUpdateIsNoOpWhenCompleteOrNotStarted(t *testing.T) {
	p := New([]PhaseParams{{Name: "A", EndTemp: 10, MinDuration: time.Second, MaxDuration: time.Second}})

	assert.False(t, p.Update(100, 5000), "not started")
	assert.Equal(t, PhaseIndex(0), p.CurrentPhase())

	p.StartReflow(0)
	require.True(t, p.Update(100, 1000))
	require.True(t, p.IsComplete())
	assert.False(t, p.Update(100, 2000))
	assert.Equal(t, Complete, p.CurrentPhase())
}

func TestMonotonicAdvanceReachesComplete(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for run := 0; run < 20; run++ {
		p := New(Default())
		p.StartReflow(0)

		last := 0
		now := clock.Millis(0)
		for i := 0; i < 10000 && !p.IsComplete(); i++ {
			now = now.Add(tick)
			p.Update(rng.Float64()*300, now)
			pos := int(p.CurrentPhase())
			if p.IsComplete() {
				pos = p.Len()
			}
			require.GreaterOrEqual(t, pos, last, "cursor moved backwards")
			require.LessOrEqual(t, pos-last, 1, "cursor skipped a phase")
			last = pos
		}
		require.True(t, p.IsComplete(), "run %d never completed", run)
	}
}

func TestEndToEndPerfectTracking(t *testing.T) {
	p := New(Default())
	p.StartReflow(0)

	measured := 25.0
	step := func(now clock.Millis) {
		p.Update(measured, now)
		measured = math.Max(p.Setpoint(now), 25)
	}

	now := clock.Millis(0)
	for ; now < ms(180*time.Second); now = now.Add(tick) {
		step(now)
	}
	step(now)
	assert.Equal(t, PhaseIndex(1), p.CurrentPhase())
	assert.Equal(t, "Soak", p.PhaseName())

	for ; now < ms(370*time.Second); now = now.Add(tick) {
		step(now)
		if p.CurrentPhase() == 2 {
			measured = 235
		}
	}
	measured = 235
	p.Update(measured, now)
	assert.Equal(t, PhaseIndex(3), p.CurrentPhase())
	assert.Equal(t, "Dwell", p.PhaseName())
}

func TestStartReflowIsIdempotent(t *testing.T) {
	p := New(Default())
	p.StartReflow(0)
	p.Update(150, 180000)
	p.Update(180, 300000)
	require.Equal(t, PhaseIndex(2), p.CurrentPhase())

	p.StartReflow(400000)
	p.StartReflow(500000)

	assert.Equal(t, PhaseIndex(0), p.CurrentPhase())
	assert.Equal(t, time.Duration(0), p.Elapsed(500000))
	for i := 0; i < p.Len(); i++ {
		ph := p.Phase(i)
		assert.False(t, ph.Completed, "phase %d", i)
		if i == 0 {
			assert.True(t, ph.Started)
			assert.Equal(t, clock.Millis(500000), ph.StartedAt)
		} else {
			assert.False(t, ph.Started, "phase %d", i)
		}
	}
}

func TestRunAcrossCounterWraparound(t *testing.T) {
	start := clock.Millis(math.MaxUint32 - 30000)
	p := New([]PhaseParams{
		{Name: "Soak", StartTemp: 150, EndTemp: 180, MinDuration: 120 * time.Second, MaxDuration: 120 * time.Second},
	})
	p.StartReflow(start)

	mid := start.Add(60 * time.Second)
	require.Less(t, uint32(mid), uint32(start), "timestamp should have wrapped")
	assert.InDelta(t, 165.0, p.Setpoint(mid), 1e-9)
	assert.False(t, p.Update(170, mid))
	assert.True(t, p.Update(180, start.Add(120*time.Second)))
}

func TestSetPhasesClampsMalformedInput(t *testing.T) {
	params := make([]PhaseParams, 7)
	for i := range params {
		params[i] = PhaseParams{Name: "p", MinDuration: 20 * time.Second, MaxDuration: 10 * time.Second}
	}
	params[0].MinDuration = -5 * time.Second
	params[0].MaxDuration = -time.Second

	p := New(params)

	require.Equal(t, MaxPhases, p.Len())
	assert.Equal(t, time.Duration(0), p.Phase(0).MinDuration)
	assert.Equal(t, time.Duration(0), p.Phase(0).MaxDuration)
	assert.Equal(t, 20*time.Second, p.Phase(1).MaxDuration)
}

func TestEmptyProfileCompletesImmediately(t *testing.T) {
	p := New(nil)
	p.StartReflow(0)

	assert.True(t, p.IsComplete())
	assert.Equal(t, 0.0, p.Setpoint(0))
	assert.Equal(t, 0.0, p.FeedforwardSlope(0, time.Second))
}

func TestIdealTempFollowsSchedule(t *testing.T) {
	p := New(Default())
	p.StartReflow(0)

	assert.InDelta(t, 75.0, p.IdealTemp(ms(90*time.Second)), 1e-9)
	assert.InDelta(t, 165.0, p.IdealTemp(ms(240*time.Second)), 1e-9)
	assert.InDelta(t, 180+55.0/7, p.IdealTemp(ms(310*time.Second)), 1e-9, "ramps through a hold phase")
	assert.Equal(t, 235.0, p.IdealTemp(ms(400*time.Second)), "boundary belongs to the ending phase")
	assert.Equal(t, 0.0, p.IdealTemp(ms(600*time.Second)))
}

func TestSetpointFollowsScheduleAfterOverrun(t *testing.T) {
	p := New([]PhaseParams{
		{Name: "A", StartTemp: 0, EndTemp: 100, MinDuration: 100 * time.Second, MaxDuration: 200 * time.Second},
		{Name: "B", StartTemp: 100, EndTemp: 200, MinDuration: 100 * time.Second, MaxDuration: 200 * time.Second},
	})
	p.StartReflow(0)

	assert.False(t, p.Update(90, ms(150*time.Second)))
	require.True(t, p.Update(100, ms(160*time.Second)))
	require.Equal(t, "B", p.PhaseName())

	now := ms(170 * time.Second)
	assert.InDelta(t, 170.0, p.Setpoint(now), 1e-9)
	assert.Equal(t, p.IdealTemp(now), p.Setpoint(now))
	assert.InDelta(t, 1.0, p.FeedforwardSlope(now, 0), 1e-9)
	phaseB := p.Phase(1)
	assert.Equal(t, 10*time.Second, phaseB.Elapsed(now))
}

func TestWithAchievedRatio(t *testing.T) {
	p := New([]PhaseParams{{Name: "A", EndTemp: 100, MinDuration: time.Second, MaxDuration: time.Minute}}, WithAchievedRatio(0.95))
	assert.InDelta(t, 95.0, p.Phase(0).AchievedTemp, 1e-9)
}
