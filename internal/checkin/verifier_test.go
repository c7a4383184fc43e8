package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/record"
	"rollcall/internal/session"
	"rollcall/internal/token"
)

type fixture struct {
	sessions *session.MemoryStore
	records  *record.MemoryStore
	svc      *record.Service
	verifier *Verifier
	sess     session.Session
	now      time.Time
}

func newFixture(t *testing.T, strategy Strategy, fences GeofenceProvider) *fixture {
	t.Helper()
	sessions := session.NewMemoryStore()
	records := record.NewMemoryStore()
	svc := record.NewService(records, nil)

	sess, err := sessions.Upsert(context.Background(), session.Session{
		ClassID: "class-7a",
		Date:    "2026-03-02",
		IsOpen:  true,
		Mode:    session.ModeQR,
	})
	require.NoError(t, err)

	f := &fixture{
		sessions: sessions,
		records:  records,
		svc:      svc,
		sess:     sess,
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.verifier = NewVerifier(sessions, svc, fences, strategy, 35*time.Second)
	f.verifier.now = func() time.Time { return f.now }
	return f
}

// setToken mints a token at the given time and installs it as current.
func (f *fixture) setToken(t *testing.T, mint time.Time) string {
	t.Helper()
	tok, err := token.Mint(f.sess.ID, mint)
	require.NoError(t, err)
	require.NoError(t, f.sessions.SetToken(context.Background(), f.sess.ID, tok))
	return tok
}

func ptr(v float64) *float64 { return &v }

func TestVerifyHappyPathWritesPendingRecord(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok := f.setToken(t, f.now)

	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	require.NoError(t, err)

	rec, err := f.records.Get(context.Background(), f.sess.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, record.StatusPresent, rec.Status)
	assert.False(t, rec.IsVerified)
}

func TestVerifyRejectsClosedSession(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok := f.setToken(t, f.now)
	require.NoError(t, f.sessions.SetOpen(context.Background(), f.sess.ID, false))

	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestVerifyRejectsUnknownSession(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	err := f.verifier.Verify(context.Background(), Request{
		SessionID: "no-such-session", StudentID: "alice", Token: "ATTEND:x:1:abc",
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestVerifyRejectsMissingIdentity(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok := f.setToken(t, f.now)

	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "", Token: tok,
	})
	assert.ErrorIs(t, err, ErrIdentityMissing)
}

func TestVerifyRejectsMalformedBeforeFreshness(t *testing.T) {
	f := newFixture(t, StrategyTimeboxed, nil)
	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: "not a token",
	})
	assert.ErrorIs(t, err, token.ErrMalformed)
}

func TestAuthoritativeRejectsRotatedButFreshToken(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	t1 := f.setToken(t, f.now)
	// Rotation replaces t1 ten seconds later.
	f.setToken(t, f.now.Add(10*time.Second))
	f.now = f.now.Add(15 * time.Second)

	// t1 is only 15s old, well inside the freshness window, but it is
	// no longer the single current token.
	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: t1,
	})
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestAuthoritativeRejectsWhenNoTokenMinted(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok, err := token.Mint(f.sess.ID, f.now)
	require.NoError(t, err)

	err = f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestTimeboxedFreshnessWindow(t *testing.T) {
	f := newFixture(t, StrategyTimeboxed, nil)
	mint := f.now
	tok, err := token.Mint(f.sess.ID, mint)
	require.NoError(t, err)

	// 34s after mint: accepted even though it was never persisted as
	// the current token.
	f.now = mint.Add(34 * time.Second)
	require.NoError(t, f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	}))

	// Exactly 35s: boundary inclusive.
	f.now = mint.Add(35 * time.Second)
	require.NoError(t, f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "bob", Token: tok,
	}))

	// 36s: expired.
	f.now = mint.Add(36 * time.Second)
	err = f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "carol", Token: tok,
	})
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTimeboxedRejectsTokenForOtherSession(t *testing.T) {
	f := newFixture(t, StrategyTimeboxed, nil)
	tok, err := token.Mint("some-other-session", f.now)
	require.NoError(t, err)

	err = f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestGeofenceAcceptsInsideRadius(t *testing.T) {
	fences := StaticGeofences{"class-7a": {Lat: 0, Lng: 0, RadiusMeters: 100}}
	f := newFixture(t, StrategyAuthoritative, fences)
	tok := f.setToken(t, f.now)

	// ~55m east of the reference point.
	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
		Lat: ptr(0), Lng: ptr(0.0005),
	})
	require.NoError(t, err)
}

func TestGeofenceRejectsOutsideRadiusWithDistance(t *testing.T) {
	fences := StaticGeofences{"class-7a": {Lat: 0, Lng: 0, RadiusMeters: 100}}
	f := newFixture(t, StrategyAuthoritative, fences)
	tok := f.setToken(t, f.now)

	// ~150m east: outside the 100m fence.
	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
		Lat: ptr(0), Lng: ptr(0.00135),
	})
	require.Error(t, err)
	var geo *GeofenceError
	require.ErrorAs(t, err, &geo)
	assert.InDelta(t, 150, geo.DistanceMeters, 1)
	assert.Contains(t, err.Error(), "150")
}

func TestGeofenceRequiresCoordinates(t *testing.T) {
	fences := StaticGeofences{"class-7a": {Lat: 0, Lng: 0, RadiusMeters: 100}}
	f := newFixture(t, StrategyAuthoritative, fences)
	tok := f.setToken(t, f.now)

	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	assert.ErrorIs(t, err, ErrLocationUnavailable)
}

func TestNoGeofenceSkipsDistanceCheck(t *testing.T) {
	// Provider exists but has nothing for this class.
	f := newFixture(t, StrategyAuthoritative, StaticGeofences{})
	tok := f.setToken(t, f.now)

	err := f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	})
	require.NoError(t, err)
}

func TestDuplicateScanUpsertsSingleRecord(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok := f.setToken(t, f.now)

	req := Request{SessionID: f.sess.ID, StudentID: "alice", Token: tok}
	require.NoError(t, f.verifier.Verify(context.Background(), req))
	require.NoError(t, f.verifier.Verify(context.Background(), req))

	recs, err := f.records.ListBySession(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestManualMarkWritesVerifiedRecord(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)

	require.NoError(t, f.verifier.ManualMark(context.Background(), f.sess.ID, "dave", record.StatusExcusedSick))

	rec, err := f.records.Get(context.Background(), f.sess.ID, "dave")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsVerified)
	assert.Equal(t, record.StatusExcusedSick, rec.Status)
}

func TestManualMarkOverridesPendingScan(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	tok := f.setToken(t, f.now)
	require.NoError(t, f.verifier.Verify(context.Background(), Request{
		SessionID: f.sess.ID, StudentID: "alice", Token: tok,
	}))

	require.NoError(t, f.verifier.ManualMark(context.Background(), f.sess.ID, "alice", record.StatusPresent))

	rec, err := f.records.Get(context.Background(), f.sess.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsVerified)

	recs, err := f.records.ListBySession(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestManualMarkValidatesStatus(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	err := f.verifier.ManualMark(context.Background(), f.sess.ID, "dave", record.Status("late"))
	require.Error(t, err)
}

func TestManualMarkRequiresOpenSession(t *testing.T) {
	f := newFixture(t, StrategyAuthoritative, nil)
	require.NoError(t, f.sessions.SetOpen(context.Background(), f.sess.ID, false))
	err := f.verifier.ManualMark(context.Background(), f.sess.ID, "dave", record.StatusPresent)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

// TestRotationScenario walks the full token lifecycle: T1 minted at t0,
// rotated to T2 at t0+10s, then scans against both strategies.
func TestRotationScenario(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("timeboxed", func(t *testing.T) {
		f := newFixture(t, StrategyTimeboxed, nil)
		f.now = t0
		t1 := f.setToken(t, t0)
		f.setToken(t, t0.Add(10*time.Second)) // T2 replaces T1

		f.now = t0.Add(34 * time.Second)
		require.NoError(t, f.verifier.Verify(context.Background(), Request{
			SessionID: f.sess.ID, StudentID: "alice", Token: t1,
		}))

		f.now = t0.Add(36 * time.Second)
		err := f.verifier.Verify(context.Background(), Request{
			SessionID: f.sess.ID, StudentID: "bob", Token: t1,
		})
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("authoritative", func(t *testing.T) {
		f := newFixture(t, StrategyAuthoritative, nil)
		f.now = t0
		t1 := f.setToken(t, t0)
		f.setToken(t, t0.Add(10*time.Second))

		f.now = t0.Add(5 * time.Second)
		err := f.verifier.Verify(context.Background(), Request{
			SessionID: f.sess.ID, StudentID: "alice", Token: t1,
		})
		assert.ErrorIs(t, err, ErrTokenMismatch)
	})
}

func TestReasonLabels(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "session_closed", Reason(ErrSessionClosed))
	assert.Equal(t, "token_expired", Reason(ErrTokenExpired))
	assert.Equal(t, "token_mismatch", Reason(ErrTokenMismatch))
	assert.Equal(t, "malformed_token", Reason(token.ErrMalformed))
	assert.Equal(t, "location_unavailable", Reason(ErrLocationUnavailable))
	assert.Equal(t, "identity_missing", Reason(ErrIdentityMissing))
	assert.Equal(t, "geofence", Reason(&GeofenceError{DistanceMeters: 150, RadiusMeters: 100}))
	assert.Equal(t, "storage_error", Reason(assert.AnError))
}
