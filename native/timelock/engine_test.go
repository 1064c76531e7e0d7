package timelock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quadlend/crypto"
	"quadlend/state"
	"quadlend/storage"
)

type recordingTarget struct {
	calls []recordedCall
	fail  error
}

type recordedCall struct {
	caller   crypto.Address
	selector [4]byte
	args     []byte
}

func (r *recordingTarget) HandleCall(caller crypto.Address, selector [4]byte, args []byte) error {
	if r.fail != nil {
		return r.fail
	}
	r.calls = append(r.calls, recordedCall{caller: caller, selector: selector, args: args})
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTimelock(t *testing.T) (*Engine, *recordingTarget, *clock, crypto.Address, crypto.Address) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	tl := NewEngine(crypto.ModuleAddress("timelock"), 3600)
	tl.SetState(state.NewStore(storage.NewMemDB()))
	tl.SetNowFunc(clk.Now)
	proposer := crypto.Address{0x01}
	tl.AddProposer(proposer)
	target := &recordingTarget{}
	targetAddr := crypto.Address{0x02}
	tl.RegisterTarget(targetAddr, target)
	return tl, target, clk, proposer, targetAddr
}

func TestScheduleAndExecute(t *testing.T) {
	tl, target, clk, proposer, targetAddr := newTestTimelock(t)

	data, err := EncodeCall("setPaused(bool)", struct{ Paused bool }{true})
	require.NoError(t, err)

	_, err = tl.Schedule(proposer, targetAddr, data, 60)
	require.ErrorIs(t, err, ErrDelayTooShort)
	_, err = tl.Schedule(crypto.Address{0x09}, targetAddr, data, 3600)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = tl.Schedule(proposer, crypto.Address{0x0A}, data, 3600)
	require.ErrorIs(t, err, ErrUnknownTarget)

	id, err := tl.Schedule(proposer, targetAddr, data, 3600)
	require.NoError(t, err)

	require.ErrorIs(t, tl.Execute(proposer, id), ErrOperationNotReady)
	clk.Advance(time.Hour)
	require.NoError(t, tl.Execute(proposer, id))
	require.ErrorIs(t, tl.Execute(proposer, id), ErrOperationDone)

	require.Len(t, target.calls, 1)
	call := target.calls[0]
	require.Equal(t, tl.Address(), call.caller)
	require.Equal(t, Selector("setPaused(bool)"), call.selector)
	var args struct{ Paused bool }
	require.NoError(t, DecodeArgs(call.args, &args))
	require.True(t, args.Paused)
}

func TestOperationIDsAreUniquePerSchedule(t *testing.T) {
	tl, _, _, proposer, targetAddr := newTestTimelock(t)
	data, err := EncodeCall("noop()", nil)
	require.NoError(t, err)
	first, err := tl.Schedule(proposer, targetAddr, data, 3600)
	require.NoError(t, err)
	second, err := tl.Schedule(proposer, targetAddr, data, 3600)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestCancelAndFailedExecution(t *testing.T) {
	tl, target, clk, proposer, targetAddr := newTestTimelock(t)
	data, err := EncodeCall("noop()", nil)
	require.NoError(t, err)

	id, err := tl.Schedule(proposer, targetAddr, data, 3600)
	require.NoError(t, err)
	require.NoError(t, tl.Cancel(proposer, id))
	clk.Advance(2 * time.Hour)
	require.ErrorIs(t, tl.Execute(proposer, id), ErrOperationCancelled)

	boom := errors.New("boom")
	target.fail = boom
	id, err = tl.Schedule(proposer, targetAddr, data, 3600)
	require.NoError(t, err)
	clk.Advance(time.Hour)
	require.ErrorIs(t, tl.Execute(proposer, id), boom)
	op, err := tl.Operation(id)
	require.NoError(t, err)
	require.False(t, op.Executed)

	target.fail = nil
	require.NoError(t, tl.Execute(proposer, id))
}

func TestUpdateDelayThroughSelf(t *testing.T) {
	tl, _, clk, proposer, _ := newTestTimelock(t)
	data, err := EncodeCall("updateDelay(uint64)", struct{ Delay uint64 }{7200})
	require.NoError(t, err)
	id, err := tl.Schedule(proposer, tl.Address(), data, 3600)
	require.NoError(t, err)
	clk.Advance(time.Hour)
	require.NoError(t, tl.Execute(crypto.Address{0x77}, id))

	delay, err := tl.MinDelay()
	require.NoError(t, err)
	require.Equal(t, uint64(7200), delay)

	require.ErrorIs(t, tl.HandleCall(proposer, Selector("updateDelay(uint64)"), nil), ErrUnauthorized)
}
