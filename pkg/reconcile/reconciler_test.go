package reconcile_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spotwall/radbridge/pkg/disconnect"
	"github.com/spotwall/radbridge/pkg/reconcile"
	"github.com/spotwall/radbridge/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "radbridge.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *store.Store, sessionID, username string) {
	t.Helper()
	require.NoError(t, s.OpenSession(context.Background(), &store.Session{
		SessionID:  sessionID,
		Username:   username,
		NASAddress: "10.0.0.1",
		FramedIP:   "172.16.0.10",
		Start:      time.Now().Add(-time.Hour),
	}))
}

func seedNAS(t *testing.T, s *store.Store) {
	t.Helper()
	require.NoError(t, s.SaveNAS(context.Background(), &store.NAS{
		Address: "10.0.0.1",
		Secret:  "testing123",
	}))
}

func validRequest() disconnect.Request {
	return disconnect.Request{
		Username:   "alice",
		SessionID:  "8100000a",
		NASAddress: "10.0.0.1",
		FramedIP:   "172.16.0.10",
	}
}

func TestKickAckedClosesOnce(t *testing.T) {
	s := openTestStore(t)
	seedNAS(t, s)
	seedSession(t, s, "8100000a", "alice")

	transport := disconnect.NewSimulatedTransport()
	transport.Result = disconnect.OutcomeAcked
	r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	res, err := r.Kick(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, reconcile.ReasonAcked, res.Reason)
	assert.Equal(t, int64(1), res.Closed)

	// Kicking again is a no-op write: zero open rows match.
	res, err = r.Kick(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Closed)

	sess, err := s.GetSession(context.Background(), "8100000a", "alice")
	require.NoError(t, err)
	assert.False(t, sess.Online())
	assert.Equal(t, store.CauseAdminDisconnect, sess.TerminateCause)
}

func TestKickClosesRegardlessOfOutcome(t *testing.T) {
	cases := []struct {
		name    string
		outcome disconnect.Outcome
		reason  reconcile.Reason
		success bool
	}{
		{"acked", disconnect.OutcomeAcked, reconcile.ReasonAcked, true},
		{"rejected", disconnect.OutcomeRejected, reconcile.ReasonRejectedOrTimeout, false},
		{"simulated", disconnect.OutcomeSimulated, reconcile.ReasonSimulated, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := openTestStore(t)
			seedNAS(t, s)
			seedSession(t, s, "8100000a", "alice")

			transport := disconnect.NewSimulatedTransport()
			transport.Result = tc.outcome
			r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
			require.NoError(t, err)

			res, err := r.Kick(context.Background(), validRequest())
			require.NoError(t, err)
			assert.Equal(t, tc.success, res.Success)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, int64(1), res.Closed)

			sess, err := s.GetSession(context.Background(), "8100000a", "alice")
			require.NoError(t, err)
			assert.False(t, sess.Online())
			assert.Equal(t, store.CauseAdminDisconnect, sess.TerminateCause)
		})
	}
}

func TestKickUnknownDeviceStillCloses(t *testing.T) {
	s := openTestStore(t)
	// No NAS saved at all.
	seedSession(t, s, "8100000a", "alice")

	transport := disconnect.NewSimulatedTransport()
	r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	res, err := r.Kick(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, reconcile.ReasonDeviceUnknown, res.Reason)
	assert.Equal(t, int64(1), res.Closed)
	// Nothing was put on the wire.
	assert.Empty(t, transport.Sent())

	sess, err := s.GetSession(context.Background(), "8100000a", "alice")
	require.NoError(t, err)
	assert.False(t, sess.Online())
	assert.Equal(t, store.CauseAdminDisconnect, sess.TerminateCause)
}

func TestKickValidationFailsBeforeAnyIO(t *testing.T) {
	s := openTestStore(t)
	seedNAS(t, s)
	seedSession(t, s, "8100000a", "alice")

	transport := disconnect.NewSimulatedTransport()
	r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	req := validRequest()
	req.FramedIP = ""
	_, err = r.Kick(context.Background(), req)
	assert.ErrorIs(t, err, disconnect.ErrIncomplete)
	assert.Empty(t, transport.Sent())

	sess, err := s.GetSession(context.Background(), "8100000a", "alice")
	require.NoError(t, err)
	assert.True(t, sess.Online())
}

// A framed IP that is present but garbage is the same caller bug as a
// missing field: rejected up front, session untouched.
func TestKickBadFramedIPFailsBeforeAnyIO(t *testing.T) {
	s := openTestStore(t)
	seedNAS(t, s)
	seedSession(t, s, "8100000a", "alice")

	transport := disconnect.NewSimulatedTransport()
	r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	req := validRequest()
	req.FramedIP = "not-an-ip"
	_, err = r.Kick(context.Background(), req)
	assert.ErrorIs(t, err, disconnect.ErrIncomplete)
	assert.Empty(t, transport.Sent())

	sess, err := s.GetSession(context.Background(), "8100000a", "alice")
	require.NoError(t, err)
	assert.True(t, sess.Online())
}

// orderedDir wraps the real store and records the call order shared
// with the transport, so the attempt-then-close ordering is observable.
type orderedDir struct {
	*store.Store
	log *[]string
}

func (d *orderedDir) CloseSession(ctx context.Context, sessionID, username, cause string, stop time.Time) (int64, error) {
	*d.log = append(*d.log, "close")
	return d.Store.CloseSession(ctx, sessionID, username, cause, stop)
}

type orderedTransport struct {
	inner *disconnect.SimulatedTransport
	log   *[]string
}

func (t *orderedTransport) Send(ctx context.Context, addr string, secret []byte, req disconnect.Request) (disconnect.Outcome, error) {
	*t.log = append(*t.log, "send")
	return t.inner.Send(ctx, addr, secret, req)
}

func TestKickClosesAfterWireAttempt(t *testing.T) {
	s := openTestStore(t)
	seedNAS(t, s)
	seedSession(t, s, "8100000a", "alice")

	var log []string
	dir := &orderedDir{Store: s, log: &log}
	transport := &orderedTransport{inner: disconnect.NewSimulatedTransport(), log: &log}

	r, err := reconcile.NewReconciler(dir, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = r.Kick(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"send", "close"}, log)
}

func TestKickAllIndependentFailures(t *testing.T) {
	s := openTestStore(t)
	seedNAS(t, s)
	seedSession(t, s, "sess-1", "alice")
	seedSession(t, s, "sess-2", "bob")

	transport := disconnect.NewSimulatedTransport()
	transport.Result = disconnect.OutcomeAcked
	r, err := reconcile.NewReconciler(s, transport, zap.NewNop(), nil)
	require.NoError(t, err)

	reqs := []disconnect.Request{
		{Username: "alice", SessionID: "sess-1", NASAddress: "10.0.0.1", FramedIP: "172.16.0.10"},
		{Username: "broken"}, // invalid, must not abort the batch
		{Username: "bob", SessionID: "sess-2", NASAddress: "10.0.0.1", FramedIP: "172.16.0.11"},
	}

	res := r.KickAll(context.Background(), reqs)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, int64(2), res.Closed)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], disconnect.ErrIncomplete)
}

type capturingCloser struct {
	maxAge time.Duration
	closed int64
}

func (c *capturingCloser) SweepStale(_ context.Context, maxAge time.Duration, _ time.Time) (int64, error) {
	c.maxAge = maxAge
	return c.closed, nil
}

func TestSweeperDefaultsMaxAge(t *testing.T) {
	dir := &capturingCloser{closed: 5}
	sw, err := reconcile.NewSweeper(dir, zap.NewNop(), nil)
	require.NoError(t, err)

	n, err := sw.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, reconcile.DefaultMaxSessionAge, dir.maxAge)

	_, err = sw.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, dir.maxAge)
}

func TestSweeperAgainstStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.OpenSession(context.Background(), &store.Session{
		SessionID:  "old",
		Username:   "alice",
		NASAddress: "10.0.0.1",
		Start:      time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, s.OpenSession(context.Background(), &store.Session{
		SessionID:  "new",
		Username:   "bob",
		NASAddress: "10.0.0.1",
		Start:      time.Now().Add(-time.Hour),
	}))

	sw, err := reconcile.NewSweeper(s, zap.NewNop(), nil)
	require.NoError(t, err)

	n, err := sw.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := s.GetSession(context.Background(), "old", "alice")
	require.NoError(t, err)
	assert.Equal(t, store.CauseAdminReset, old.TerminateCause)
}
