package verification

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSMS struct {
	mu    sync.Mutex
	sent  map[string][]string
	fail  error
	calls int
}

func (f *fakeSMS) SendVerificationCode(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[phone] = append(f.sent[phone], code)
	return nil
}

func (f *fakeSMS) last(phone string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.sent[phone]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type fakeLookup struct {
	at  *time.Time
	err error
}

func (f fakeLookup) LastVerified(context.Context, string, string) (*time.Time, error) {
	return f.at, f.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, settings Settings, lookup VerificationLookup) (*Manager, *fakeSMS, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.nowF = clk.Now
	sms := &fakeSMS{}
	m := NewManager(store, sms, lookup, settings, zap.NewNop())
	m.SetClock(clk.Now)
	return m, sms, clk
}

func TestGenerateCode_SixDigitsInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestCodeMatches(t *testing.T) {
	h := hashCode("482913")
	assert.True(t, codeMatches("482913", h))
	assert.False(t, codeMatches("482914", h))
	assert.False(t, codeMatches("", h))
}

func TestNewTarget_Normalizes(t *testing.T) {
	tg := NewTarget("55 1234-5678", "")
	assert.Equal(t, "5512345678", tg.Phone)
	assert.Equal(t, "+52", tg.CountryCode)
	assert.Equal(t, "+525512345678", tg.E164())
}

func TestManager_StartSendsAndVerifies(t *testing.T) {
	m, sms, _ := newTestManager(t, DefaultSettings(), fakeLookup{})
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	st, err := m.Start(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, 60, st.ResendIn)

	code := sms.last(tg.E164())
	require.Len(t, code, 6)

	ok, err := m.Verify(ctx, tg, "999999x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Verify(ctx, tg, code)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Verify(ctx, tg, code)
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestManager_PurposesDoNotShareCodes(t *testing.T) {
	m, sms, _ := newTestManager(t, DefaultSettings(), fakeLookup{})
	ctx := context.Background()
	lead := NewTarget("5512345678", "+52")
	reset := lead.For(PurposeReset)

	_, err := m.Start(ctx, lead)
	require.NoError(t, err)
	leadCode := sms.last(lead.E164())

	_, err = m.Verify(ctx, reset, leadCode)
	assert.ErrorIs(t, err, ErrNoActiveChallenge)

	_, err = m.Start(ctx, reset)
	require.NoError(t, err)
	resetCode := sms.last(reset.E164())

	if resetCode != leadCode {
		ok, err := m.Verify(ctx, reset, leadCode)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := m.Verify(ctx, lead, leadCode)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Verify(ctx, reset, resetCode)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_StartWithinCooldownReusesCode(t *testing.T) {
	m, sms, clk := newTestManager(t, DefaultSettings(), fakeLookup{})
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	_, err := m.Start(ctx, tg)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	st, err := m.Start(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, 1, sms.calls)
	assert.Equal(t, 50, st.ResendIn)
}

func TestManager_ResendCooldown(t *testing.T) {
	m, sms, clk := newTestManager(t, DefaultSettings(), fakeLookup{})
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	_, err := m.Start(ctx, tg)
	require.NoError(t, err)
	first := sms.last(tg.E164())

	clk.Advance(30 * time.Second)
	_, err = m.Resend(ctx, tg)
	require.ErrorIs(t, err, ErrResendCooldown)
	var cd *CooldownError
	require.True(t, errors.As(err, &cd))
	assert.Equal(t, 30*time.Second, cd.Remaining)

	clk.Advance(30 * time.Second)
	_, err = m.Resend(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, 2, sms.calls)

	second := sms.last(tg.E164())
	if first != second {
		ok, err := m.Verify(ctx, tg, first)
		require.NoError(t, err)
		assert.False(t, ok, "superseded code must not verify")
	}
	ok, err := m.Verify(ctx, tg, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_ExpiredChallenge(t *testing.T) {
	m, sms, clk := newTestManager(t, DefaultSettings(), fakeLookup{})
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	_, err := m.Start(ctx, tg)
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)

	_, err = m.Verify(ctx, tg, sms.last(tg.E164()))
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestManager_DispatchFailureLeavesNoChallenge(t *testing.T) {
	m, sms, _ := newTestManager(t, DefaultSettings(), fakeLookup{})
	sms.fail = errors.New("gateway down")
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	_, err := m.Start(ctx, tg)
	require.ErrorIs(t, err, ErrDispatchFailed)

	_, err = m.Verify(ctx, tg, "123456")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestManager_TestPhoneBypass(t *testing.T) {
	settings := DefaultSettings()
	settings.TestBypass = true
	m, sms, _ := newTestManager(t, settings, fakeLookup{})
	ctx := context.Background()
	tg := NewTarget("1234567890", "+52")

	_, err := m.Start(ctx, tg)
	require.NoError(t, err)
	assert.Zero(t, sms.calls)

	ok, err := m.Verify(ctx, tg, TestCode)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_TestPhoneWithoutBypassGetsRealCode(t *testing.T) {
	m, sms, _ := newTestManager(t, DefaultSettings(), fakeLookup{})
	tg := NewTarget("1234567890", "+52")

	code, bypass, err := m.CodeFor(tg)
	require.NoError(t, err)
	assert.False(t, bypass)
	assert.Len(t, code, 6)

	_, err = m.Start(context.Background(), tg)
	require.NoError(t, err)
	assert.Equal(t, 1, sms.calls)
}

func TestManager_RecentlyVerified(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		at   *time.Time
		want bool
	}{
		{"never", nil, false},
		{"ten days ago", ptr(now.AddDate(0, 0, -10)), true},
		{"boundary", ptr(now.Add(-30 * 24 * time.Hour)), true},
		{"forty days ago", ptr(now.AddDate(0, 0, -40)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _, _ := newTestManager(t, DefaultSettings(), fakeLookup{at: tc.at})
			tg := NewTarget("5512345678", "+52")
			for i := 0; i < 2; i++ {
				got, err := m.RecentlyVerified(context.Background(), tg)
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestManager_RecentlyVerifiedLookupError(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultSettings(), fakeLookup{err: errors.New("db down")})
	_, err := m.RecentlyVerified(context.Background(), NewTarget("5512345678", "+52"))
	assert.Error(t, err)
}

func TestRedisStore_RoundTripAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	ctx := context.Background()
	tg := NewTarget("5512345678", "+52")

	_, err := store.Get(ctx, tg)
	require.ErrorIs(t, err, ErrNoActiveChallenge)

	ch := Challenge{Target: tg, CodeHash: hashCode("111111"), CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, ch, time.Minute))

	got, err := store.Get(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, ch.CodeHash, got.CodeHash)
	assert.True(t, mr.Exists("otp:lead:+52:5512345678"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, tg)
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func ptr(t time.Time) *time.Time { return &t }
