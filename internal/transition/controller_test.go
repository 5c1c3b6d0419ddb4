package transition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-panel/internal/clock"
)

type fakeOutbound struct {
	commands []Command
	resyncs  []string
	onCmd    func(Command)
}

func (f *fakeOutbound) Command(cmd Command) {
	f.commands = append(f.commands, cmd)
	if f.onCmd != nil {
		f.onCmd(cmd)
	}
}

func (f *fakeOutbound) Resync(reason string) {
	f.resyncs = append(f.resyncs, reason)
}

func newTestController(t *testing.T) (*Controller, *fakeOutbound, *clock.Fake, *[]Outcome) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	out := &fakeOutbound{}
	var outcomes []Outcome
	c := New(Config{
		Clock:    clk,
		Observer: func(o Outcome) { outcomes = append(outcomes, o) },
	}, out, nil)
	return c, out, clk, &outcomes
}

func TestInitialStateIdleUnknown(t *testing.T) {
	c, _, _, _ := newTestController(t)
	state := c.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.False(t, state.Known)
	assert.True(t, c.Surface().Enabled)
}

func TestStatusAdoptedWhenIdle(t *testing.T) {
	c, out, _, _ := newTestController(t)
	assert.Equal(t, OutcomeAdopted, c.OnStatus(true).Kind)
	assert.Equal(t, OutcomeAdopted, c.OnStatus(true).Kind)
	assert.True(t, c.State().Running)
	assert.Equal(t, "Stop Bot", c.Surface().Label)
	assert.Empty(t, out.resyncs)
}

func TestStartResolvedByOppositeStatus(t *testing.T) {
	c, out, clk, _ := newTestController(t)
	c.OnStatus(false)

	require.NoError(t, c.RequestStart())
	state := c.State()
	assert.Equal(t, PhasePendingStart, state.Phase)
	assert.Equal(t, clk.Now().Add(DefaultTimeout), state.Deadline)
	assert.Equal(t, Surface{Label: "Starting...", Enabled: false, Action: CommandStart}, c.Surface())
	assert.Equal(t, []Command{CommandStart}, out.commands)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(500 * time.Millisecond)
	got := c.OnStatus(true)
	assert.Equal(t, OutcomeResolved, got.Kind)
	assert.Equal(t, 500*time.Millisecond, got.Elapsed)

	state = c.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.True(t, state.Running)
	assert.True(t, state.Deadline.IsZero())
	assert.Equal(t, 0, clk.Pending())
	assert.True(t, c.Surface().Enabled)

	clk.Advance(10 * time.Second)
	assert.Empty(t, out.resyncs)
}

func TestStaleEchoesKeepPending(t *testing.T) {
	c, _, clk, outcomes := newTestController(t)
	c.OnStatus(false)
	require.NoError(t, c.RequestStart())

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		assert.Equal(t, OutcomeStaleEcho, c.OnStatus(false).Kind)
		assert.Equal(t, PhasePendingStart, c.State().Phase)
		assert.Equal(t, "Starting...", c.Surface().Label)
		assert.False(t, c.Surface().Enabled)
	}

	c.OnStatus(true)
	resolved := 0
	for _, o := range *outcomes {
		if o.Kind == OutcomeResolved {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
	assert.Equal(t, OutcomeAdopted, c.OnStatus(true).Kind)
}

func TestTimeoutForcesResyncDespiteEchoes(t *testing.T) {
	c, out, clk, outcomes := newTestController(t)
	c.OnStatus(true)
	require.NoError(t, c.RequestStop())

	clk.Advance(3 * time.Second)
	c.OnStatus(true)
	clk.Advance(4 * time.Second)
	c.OnStatus(true)
	assert.Equal(t, PhasePendingStop, c.State().Phase)
	assert.Empty(t, out.resyncs)

	clk.Advance(time.Second)
	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.True(t, c.Surface().Enabled)
	assert.Equal(t, []string{"timeout"}, out.resyncs)
	last := (*outcomes)[len(*outcomes)-1]
	assert.Equal(t, OutcomeTimedOut, last.Kind)
	assert.Equal(t, PhasePendingStop, last.Phase)
}

func TestErrorClearsPendingAndResyncs(t *testing.T) {
	c, out, clk, _ := newTestController(t)
	c.OnStatus(false)
	require.NoError(t, c.RequestStart())

	got := c.OnError("exchange rejected")
	assert.Equal(t, OutcomeFailed, got.Kind)
	assert.Equal(t, "exchange rejected", got.Message)
	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.False(t, c.State().Running)
	assert.Equal(t, []string{"error"}, out.resyncs)
	assert.Equal(t, 0, clk.Pending())

	clk.Advance(10 * time.Second)
	assert.Equal(t, []string{"error"}, out.resyncs)
}

func TestErrorWhileIdleStillResyncs(t *testing.T) {
	c, out, _, outcomes := newTestController(t)
	c.OnError("boom")
	assert.Equal(t, []string{"error"}, out.resyncs)
	assert.Empty(t, *outcomes)
}

func TestSendFailureDuringRequest(t *testing.T) {
	c, out, clk, _ := newTestController(t)
	c.OnStatus(false)
	out.onCmd = func(Command) { c.OnError("push channel closed") }

	require.NoError(t, c.RequestStart())
	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, []string{"error"}, out.resyncs)
}

func TestRequestGuards(t *testing.T) {
	c, out, _, _ := newTestController(t)
	c.OnStatus(true)
	assert.ErrorIs(t, c.RequestStart(), ErrAlreadyRunning)

	require.NoError(t, c.RequestStop())
	assert.ErrorIs(t, c.RequestStop(), ErrPending)
	assert.ErrorIs(t, c.RequestStart(), ErrPending)
	assert.Equal(t, []Command{CommandStop}, out.commands)

	c.OnStatus(false)
	assert.ErrorIs(t, c.RequestStop(), ErrNotRunning)
}

func TestUnknownStateResolvesOnTarget(t *testing.T) {
	c, _, _, _ := newTestController(t)
	require.NoError(t, c.RequestStart())

	assert.Equal(t, OutcomeStaleEcho, c.OnStatus(false).Kind)
	assert.True(t, c.State().Known)
	assert.Equal(t, PhasePendingStart, c.State().Phase)

	assert.Equal(t, OutcomeResolved, c.OnStatus(true).Kind)
}

func TestUnknownStateResolvesImmediatelyOnTarget(t *testing.T) {
	c, _, _, _ := newTestController(t)
	require.NoError(t, c.RequestStop())
	assert.Equal(t, OutcomeResolved, c.OnStatus(false).Kind)
	assert.Equal(t, "Start Bot", c.Surface().Label)
}

func TestReconnectKeepsPending(t *testing.T) {
	c, out, _, _ := newTestController(t)
	c.OnStatus(false)
	require.NoError(t, c.RequestStart())

	c.OnReconnect()
	assert.Equal(t, PhasePendingStart, c.State().Phase)
	assert.Equal(t, []string{"reconnect"}, out.resyncs)
}

func TestStaleTimerFromEarlierTransitionIgnored(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	out := &fakeOutbound{}
	var posted []func()
	c := New(Config{Clock: clk, Post: func(fn func()) { posted = append(posted, fn) }}, out, nil)
	c.OnStatus(false)

	require.NoError(t, c.RequestStart())
	clk.Advance(DefaultTimeout)
	require.Len(t, posted, 1)

	// Resolved before the posted expiry got its turn on the owner goroutine.
	c.OnStatus(true)
	require.NoError(t, c.RequestStop())
	posted[0]()

	assert.Equal(t, PhasePendingStop, c.State().Phase)
	assert.Empty(t, out.resyncs)
}
