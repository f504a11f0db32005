package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopnest-api/internal/application/notification"
	"github.com/shopnest-api/internal/domain"
	"github.com/shopnest-api/internal/otp"
	"github.com/shopnest-api/internal/pkg/id"
	"github.com/shopnest-api/internal/pkg/metrics"
	pkgtoken "github.com/shopnest-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,bcrypt_len"`
	Role     string  `json:"role" validate:"omitempty,signup_role"`
	Phone    *string `json:"phone" validate:"omitempty,e164"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otp"`
}

type ResendRequest struct {
	Email   string  `json:"email" validate:"required,email"`
	Phone   *string `json:"phone" validate:"omitempty,e164"`
	Context string  `json:"context" validate:"omitempty,oneof=register login"`
}

// CodeSent reports which channels delivered a freshly issued code.
type CodeSent struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

type LoginResult struct {
	Bearer       string
	RefreshToken string
	Session      *domain.Session
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*CodeSent, error)
	VerifyRegister(ctx context.Context, req VerifyRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*CodeSent, error)
	VerifyLogin(ctx context.Context, req VerifyRequest) (*LoginResult, error)
	ResendOTP(ctx context.Context, req ResendRequest) (*CodeSent, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
}

type jwtSigner interface {
	Sign(userID, role, sessionID string) (string, error)
}

type ServiceDeps struct {
	UserRepo        userStore
	SessionRepo     sessionStore
	OTPStore        otp.Store
	Dispatcher      notification.Dispatcher
	JWTProvider     jwtSigner
	RefreshTokenDur time.Duration
	OTPTTL          time.Duration
	// Generate and Now default to otp.Generate and time.Now.
	Generate func() (string, error)
	Now      func() time.Time
}

type service struct {
	userRepo        userStore
	sessionRepo     sessionStore
	codes           otp.Store
	dispatcher      notification.Dispatcher
	jwtProvider     jwtSigner
	refreshTokenDur time.Duration
	otpTTL          time.Duration
	generate        func() (string, error)
	now             func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		userRepo:        deps.UserRepo,
		sessionRepo:     deps.SessionRepo,
		codes:           deps.OTPStore,
		dispatcher:      deps.Dispatcher,
		jwtProvider:     deps.JWTProvider,
		refreshTokenDur: deps.RefreshTokenDur,
		otpTTL:          deps.OTPTTL,
		generate:        deps.Generate,
		now:             deps.Now,
	}
	if s.otpTTL <= 0 {
		s.otpTTL = otp.DefaultTTL
	}
	if s.generate == nil {
		s.generate = otp.Generate
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*CodeSent, error) {
	email := normalizeEmail(req.Email)
	if err := s.ensureUnregistered(ctx, email); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("password too long: %w", domain.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	pending := domain.RegistrationPayload{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Phone:        req.Phone,
	}
	return s.issue(ctx, email, domain.PurposeRegister, pending, notification.Recipient{Email: email, Phone: req.Phone})
}

func (s *service) VerifyRegister(ctx context.Context, req VerifyRequest) (*domain.User, error) {
	email := normalizeEmail(req.Email)
	v, err := s.consume(ctx, email, req.OTP, domain.PurposeRegister)
	if err != nil {
		return nil, err
	}
	var p domain.RegistrationPayload
	if err := json.Unmarshal(v.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode registration payload: %w", err)
	}
	if err := s.ensureUnregistered(ctx, email); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &domain.User{
		UserID:         id.New(),
		Name:           p.Name,
		Email:          email,
		Phone:          p.Phone,
		PasswordHash:   p.PasswordHash,
		Role:           p.Role,
		Verified:       true,
		EmailConfirmed: true,
		Enable:         1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", u.UserID, "role", u.Role)
	return u, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*CodeSent, error) {
	email := normalizeEmail(req.Email)
	u, err := s.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if u.Enable != 1 {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	return s.issue(ctx, email, domain.PurposeLogin, domain.LoginPayload{UserID: u.UserID},
		notification.Recipient{Email: u.Email, Phone: u.Phone})
}

func (s *service) VerifyLogin(ctx context.Context, req VerifyRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)
	v, err := s.consume(ctx, email, req.OTP, domain.PurposeLogin)
	if err != nil {
		return nil, err
	}
	var p domain.LoginPayload
	if err := json.Unmarshal(v.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode login payload: %w", err)
	}
	u, err := s.userRepo.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if u.Enable != 1 {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}

	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Role, sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return &LoginResult{Bearer: bearer, RefreshToken: refreshToken, Session: sess}, nil
}

// ResendOTP re-issues a code for an identifier that already has a pending
// verification, keeping its payload. A login resend therefore never issues a
// code to anyone who has not passed the password step.
func (s *service) ResendOTP(ctx context.Context, req ResendRequest) (*CodeSent, error) {
	email := normalizeEmail(req.Email)
	pending, err := s.codes.Peek(ctx, email)
	if errors.Is(err, domain.ErrCodeNotFound) {
		return nil, fmt.Errorf("nothing to resend, please start again: %w", domain.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	if req.Context != "" && req.Context != pending.Purpose {
		return nil, fmt.Errorf("no pending %s verification, please start again: %w", req.Context, domain.ErrBadRequest)
	}

	switch pending.Purpose {
	case domain.PurposeRegister:
		var p domain.RegistrationPayload
		if err := json.Unmarshal(pending.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode registration payload: %w", err)
		}
		if err := s.ensureUnregistered(ctx, email); err != nil {
			return nil, err
		}
		if req.Phone != nil {
			p.Phone = req.Phone
		}
		return s.issue(ctx, email, domain.PurposeRegister, p, notification.Recipient{Email: email, Phone: p.Phone})

	case domain.PurposeLogin:
		var p domain.LoginPayload
		if err := json.Unmarshal(pending.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode login payload: %w", err)
		}
		u, err := s.userRepo.Get(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return s.issue(ctx, email, domain.PurposeLogin, p, notification.Recipient{Email: u.Email, Phone: u.Phone})
	}
	return nil, fmt.Errorf("unknown verification purpose %q: %w", pending.Purpose, domain.ErrBadRequest)
}

// issue generates and stores a fresh code for identifier, replacing any
// outstanding one, then delivers it. When no channel delivers, the stored
// entry is removed again so no unreachable code stays valid.
func (s *service) issue(ctx context.Context, identifier, purpose string, payload any, to notification.Recipient) (*CodeSent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", purpose, err)
	}
	code, err := s.generate()
	if err != nil {
		return nil, err
	}
	v := &domain.PendingVerification{
		Identifier: identifier,
		Code:       code,
		Purpose:    purpose,
		Payload:    raw,
	}
	if err := s.codes.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("store verification: %w", err)
	}
	metrics.OTPIssued.WithLabelValues(purpose).Inc()

	res := s.dispatcher.Send(ctx, to, s.message(purpose, code))
	if !res.Any() {
		if err := s.codes.Delete(ctx, identifier); err != nil {
			slog.Error("could not invalidate undelivered code", "identifier", identifier, "err", err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, res.Err)
	}
	if res.Err != nil {
		slog.Warn("partial code delivery", "identifier", identifier, "email", res.Email, "sms", res.SMS, "err", res.Err)
	}
	return &CodeSent{Email: res.Email, SMS: res.SMS}, nil
}

// consume checks code against the pending entry for identifier. An entry
// issued for another purpose is reported as not found and kept, unless it has
// already expired, in which case it is purged.
func (s *service) consume(ctx context.Context, identifier, code, purpose string) (*domain.PendingVerification, error) {
	pending, err := s.codes.Peek(ctx, identifier)
	if err == nil && pending.Purpose != purpose {
		err = domain.ErrCodeNotFound
		if pending.Expired(s.now()) {
			if derr := s.codes.Delete(ctx, identifier); derr != nil {
				return nil, fmt.Errorf("purge expired verification: %w", derr)
			}
			err = domain.ErrCodeExpired
		}
	}
	if err == nil {
		pending, err = s.codes.Verify(ctx, identifier, code)
	}
	if err == nil && pending.Purpose != purpose {
		err = domain.ErrCodeNotFound
	}
	metrics.OTPVerifications.WithLabelValues(verifyResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *service) ensureUnregistered(ctx context.Context, email string) error {
	_, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *service) message(purpose, code string) notification.Message {
	subject := "Your ShopNest verification code"
	if purpose == domain.PurposeLogin {
		subject = "Your ShopNest login code"
	}
	return notification.Message{
		Subject: subject,
		Body: fmt.Sprintf("Your ShopNest verification code is %s. It expires in %s.",
			code, humanTTL(s.otpTTL)),
	}
}

// humanTTL renders d in whole minutes, rounded up, or in seconds when it is
// shorter than a minute.
func humanTTL(d time.Duration) string {
	if d < time.Minute {
		secs := int((d + time.Second - 1) / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "mismatch"
	default:
		return "error"
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
