package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopnest-api/internal/application/notification"
	"github.com/shopnest-api/internal/domain"
	"github.com/shopnest-api/internal/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Send(ctx context.Context, to notification.Recipient, msg notification.Message) notification.Result {
	return m.Called(ctx, to, msg).Get(0).(notification.Result)
}

type mockJWTSigner struct{ mock.Mock }

func (m *mockJWTSigner) Sign(userID, role, sessionID string) (string, error) {
	args := m.Called(userID, role, sessionID)
	return args.String(0), args.Error(1)
}

// --- builder ---

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// sequentialCodes returns "100001", "100002", ... in order.
func sequentialCodes() func() (string, error) {
	n := 100000
	return func() (string, error) {
		n++
		return fmt.Sprintf("%06d", n), nil
	}
}

type fixture struct {
	svc      Service
	store    *otp.MemoryStore
	clock    *fakeClock
	users    *mockUserStore
	sessions *mockSessionStore
	dispatch *mockDispatcher
	jwt      *mockJWTSigner
}

func newFixture() *fixture {
	clock := &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:    otp.NewMemoryStore(10*time.Minute, otp.WithClock(clock.Now)),
		clock:    clock,
		users:    &mockUserStore{},
		sessions: &mockSessionStore{},
		dispatch: &mockDispatcher{},
		jwt:      &mockJWTSigner{},
	}
	f.svc = NewService(ServiceDeps{
		UserRepo:        f.users,
		SessionRepo:     f.sessions,
		OTPStore:        f.store,
		Dispatcher:      f.dispatch,
		JWTProvider:     f.jwt,
		RefreshTokenDur: 30 * 24 * time.Hour,
		OTPTTL:          10 * time.Minute,
		Generate:        sequentialCodes(),
		Now:             clock.Now,
	})
	return f
}

func (f *fixture) deliverEmail() {
	f.dispatch.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(notification.Result{Email: true})
}

func (f *fixture) noUser(email string) {
	f.users.On("GetByEmail", mock.Anything, email).Return(nil, domain.ErrNotFound)
}

func existingUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	phone := "+15550001111"
	return &domain.User{
		UserID:       "u1",
		Name:         "Ana",
		Email:        "ana@x.com",
		Phone:        &phone,
		PasswordHash: string(hash),
		Role:         domain.RoleSeller,
		Verified:     true,
		Enable:       1,
	}
}

var registerReq = RegisterRequest{Name: "A", Email: "a@x.com", Password: "Abc123!@"}

// --- Register / VerifyRegister ---

func TestRegister_ThenVerify_CreatesVerifiedUser(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()
	f.users.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	sent, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	assert.Equal(t, &CodeSent{Email: true}, sent)

	u, err := f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, "A", u.Name)
	assert.Equal(t, domain.RoleCustomer, u.Role)
	assert.True(t, u.Verified)
	assert.True(t, u.EmailConfirmed)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Abc123!@")))
	f.users.AssertCalled(t, "Put", mock.Anything, u)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestRegister_NormalisesEmail(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()

	_, err := f.svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "  A@X.com ", Password: "Abc123!@"})
	require.NoError(t, err)

	v, err := f.store.Peek(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.PurposeRegister, v.Purpose)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{UserID: "u1"}, nil)

	_, err := f.svc.Register(context.Background(), registerReq)

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, f.store.Len())
	f.dispatch.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_UserLookupFailure(t *testing.T) {
	boom := errors.New("dynamo down")
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, boom)

	_, err := f.svc.Register(context.Background(), registerReq)
	assert.ErrorIs(t, err, boom)
}

func TestRegister_SendsToPhoneWhenGiven(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	phone := "+15550002222"
	f.dispatch.On("Send", mock.Anything, notification.Recipient{Email: "a@x.com", Phone: &phone}, mock.Anything).
		Return(notification.Result{Email: true, SMS: true})

	sent, err := f.svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@x.com", Password: "Abc123!@", Phone: &phone})

	require.NoError(t, err)
	assert.Equal(t, &CodeSent{Email: true, SMS: true}, sent)
	f.dispatch.AssertExpectations(t)
}

func TestRegister_MessageCarriesCode(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.dispatch.On("Send", mock.Anything, mock.Anything, mock.MatchedBy(func(m notification.Message) bool {
		return m.Body == "Your ShopNest verification code is 100001. It expires in 10 minutes."
	})).Return(notification.Result{Email: true})

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	f.dispatch.AssertExpectations(t)
}

func TestVerifyRegister_EmailTakenMeanwhile(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound).Once()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{UserID: "other"}, nil)
	f.deliverEmail()

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

// --- OTP lifecycle through the gate ---

func TestFreshness_NewCodeInvalidatesOld(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()
	f.users.On("Put", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	assert.ErrorIs(t, err, domain.ErrCodeMismatch)
	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100002"})
	assert.NoError(t, err)
}

func TestMismatch_DoesNotMutateUsersAndAllowsRetry(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()
	f.users.On("Put", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "999999"})
	assert.ErrorIs(t, err, domain.ErrCodeMismatch)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	assert.NoError(t, err)
}

func TestExpiryBoundary(t *testing.T) {
	t.Run("just before expiry succeeds", func(t *testing.T) {
		f := newFixture()
		f.noUser("a@x.com")
		f.deliverEmail()
		f.users.On("Put", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Register(context.Background(), registerReq)
		require.NoError(t, err)
		f.clock.Advance(10*time.Minute - time.Millisecond)

		_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
		assert.NoError(t, err)
	})

	t.Run("just after expiry is rejected and purged", func(t *testing.T) {
		f := newFixture()
		f.noUser("a@x.com")
		f.deliverEmail()

		_, err := f.svc.Register(context.Background(), registerReq)
		require.NoError(t, err)
		f.clock.Advance(10*time.Minute + time.Millisecond)

		_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
		assert.ErrorIs(t, err, domain.ErrCodeExpired)
		assert.Zero(t, f.store.Len())

		_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
		assert.ErrorIs(t, err, domain.ErrCodeNotFound)
	})
}

func TestPartialDelivery_CodeStaysVerifiable(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.users.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.dispatch.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(notification.Result{Email: false, SMS: true, Err: errors.New("email: smtp down")})

	phone := "+15550002222"
	sent, err := f.svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@x.com", Password: "Abc123!@", Phone: &phone})

	require.NoError(t, err)
	assert.Equal(t, &CodeSent{Email: false, SMS: true}, sent)
	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})
	assert.NoError(t, err)
}

func TestTotalDeliveryFailure_InvalidatesCode(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.dispatch.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(notification.Result{Err: errors.New("email: smtp down")})

	_, err := f.svc.Register(context.Background(), registerReq)

	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.Zero(t, f.store.Len())
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	req := registerReq
	req.Password = strings.Repeat("é", 40)

	_, err := f.svc.Register(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Zero(t, f.store.Len())
	f.dispatch.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessage_ExpiryWording(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want string
	}{
		{10 * time.Minute, "10 minutes"},
		{90 * time.Second, "2 minutes"},
		{time.Minute, "1 minute"},
		{30 * time.Second, "30 seconds"},
		{1500 * time.Millisecond, "2 seconds"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			s := &service{otpTTL: tc.ttl}
			msg := s.message(domain.PurposeRegister, "123456")
			assert.Equal(t, "Your ShopNest verification code is 123456. It expires in "+tc.want+".", msg.Body)
		})
	}
}

// --- Login / VerifyLogin ---

func TestLogin_WrongPasswordIssuesNoCode(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@x.com", Password: "wrong"})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, f.store.Len())
	f.dispatch.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	_, err = f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "ana@x.com", OTP: "100001"})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture()
	f.noUser("ghost@x.com")

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ghost@x.com", Password: "whatever"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_DisabledAccount(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	u.Enable = 0
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@x.com", Password: "right-password"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_ThenVerify_IssuesSession(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)
	f.users.On("Get", mock.Anything, "u1").Return(u, nil)
	f.dispatch.On("Send", mock.Anything, notification.Recipient{Email: "ana@x.com", Phone: u.Phone}, mock.Anything).
		Return(notification.Result{Email: true, SMS: true})
	f.sessions.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	f.jwt.On("Sign", "u1", domain.RoleSeller, mock.Anything).Return("bearer-token", nil)

	sent, err := f.svc.Login(context.Background(), LoginRequest{Email: "Ana@x.com", Password: "right-password"})
	require.NoError(t, err)
	assert.Equal(t, &CodeSent{Email: true, SMS: true}, sent)

	res, err := f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "ana@x.com", OTP: "100001"})
	require.NoError(t, err)
	assert.Equal(t, "bearer-token", res.Bearer)
	assert.Len(t, res.RefreshToken, 64)
	assert.Equal(t, u, res.Session.User)
	assert.True(t, res.Session.Enable)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour).Unix(), res.Session.RefreshExpiresAt)
	f.jwt.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestPurposeGuard_LoginCodeCannotRegister(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)
	f.deliverEmail()

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@x.com", Password: "right-password"})
	require.NoError(t, err)

	_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "ana@x.com", OTP: "100001"})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
	assert.Equal(t, 1, f.store.Len(), "wrong-purpose attempt must not consume the code")
}

func TestPurposeGuard_ExpiredEntryIsPurged(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()
	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100001"})

	assert.ErrorIs(t, err, domain.ErrCodeExpired)
	assert.Zero(t, f.store.Len())
}

func TestVerifyLogin_AccountDisabledMeanwhile(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)
	disabled := *u
	disabled.Enable = 0
	f.users.On("Get", mock.Anything, "u1").Return(&disabled, nil)
	f.deliverEmail()

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@x.com", Password: "right-password"})
	require.NoError(t, err)

	_, err = f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "ana@x.com", OTP: "100001"})

	assert.ErrorIs(t, err, domain.ErrForbidden)
	f.sessions.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.jwt.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything)
}

// --- ResendOTP ---

func TestResend_TwiceKeepsOnlyLatestCode(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()
	f.users.On("Put", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	_, err = f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com", Context: domain.PurposeRegister})
	require.NoError(t, err)
	_, err = f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com"})
	require.NoError(t, err)

	for _, stale := range []string{"100001", "100002"} {
		_, err = f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: stale})
		assert.ErrorIs(t, err, domain.ErrCodeMismatch, stale)
	}
	u, err := f.svc.VerifyRegister(context.Background(), VerifyRequest{Email: "a@x.com", OTP: "100003"})
	require.NoError(t, err)
	assert.Equal(t, "A", u.Name)
}

func TestResend_AfterExpiryStillReusesPayload(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)

	_, err = f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com"})
	require.NoError(t, err)

	v, err := f.store.Peek(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, v.Expired(f.clock.Now()))
	var p domain.RegistrationPayload
	require.NoError(t, json.Unmarshal(v.Payload, &p))
	assert.Equal(t, "A", p.Name)
}

func TestResend_PhoneOverrideForRegistration(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	phone := "+15550003333"
	f.dispatch.On("Send", mock.Anything, notification.Recipient{Email: "a@x.com"}, mock.Anything).
		Return(notification.Result{Email: true}).Once()
	f.dispatch.On("Send", mock.Anything, notification.Recipient{Email: "a@x.com", Phone: &phone}, mock.Anything).
		Return(notification.Result{Email: true, SMS: true}).Once()

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)
	sent, err := f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com", Phone: &phone})

	require.NoError(t, err)
	assert.Equal(t, &CodeSent{Email: true, SMS: true}, sent)
	f.dispatch.AssertExpectations(t)
}

func TestResend_LoginUsesAccountChannels(t *testing.T) {
	f := newFixture()
	u := existingUser(t, "right-password")
	f.users.On("GetByEmail", mock.Anything, "ana@x.com").Return(u, nil)
	f.users.On("Get", mock.Anything, "u1").Return(u, nil)
	f.dispatch.On("Send", mock.Anything, notification.Recipient{Email: "ana@x.com", Phone: u.Phone}, mock.Anything).
		Return(notification.Result{Email: true, SMS: true})

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@x.com", Password: "right-password"})
	require.NoError(t, err)

	attacker := "+19990000000"
	_, err = f.svc.ResendOTP(context.Background(), ResendRequest{Email: "ana@x.com", Phone: &attacker, Context: domain.PurposeLogin})
	require.NoError(t, err)

	f.dispatch.AssertNumberOfCalls(t, "Send", 2)
	f.dispatch.AssertExpectations(t)
}

func TestResend_NothingPending(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestResend_ContextMismatch(t *testing.T) {
	f := newFixture()
	f.noUser("a@x.com")
	f.deliverEmail()

	_, err := f.svc.Register(context.Background(), registerReq)
	require.NoError(t, err)

	_, err = f.svc.ResendOTP(context.Background(), ResendRequest{Email: "a@x.com", Context: domain.PurposeLogin})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
