package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopnest-api/internal/domain"
	"github.com/shopnest-api/internal/otp"
)

const keyPrefix = "otp:"

// retention keeps an expired entry around long enough for Verify to report
// ErrCodeExpired instead of ErrCodeNotFound.
const retention = time.Hour

// maxTxRetries bounds the optimistic-lock retries in Verify.
const maxTxRetries = 3

// VerificationStore is an otp.Store shared by every API instance. Each entry
// is one JSON value under otp:<identifier>.
type VerificationStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ otp.Store = (*VerificationStore)(nil)

// Option configures a VerificationStore.
type Option func(*VerificationStore)

// WithClock overrides the time source used for stamping and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *VerificationStore) { s.now = now }
}

func NewVerificationStore(client *redis.Client, ttl time.Duration, opts ...Option) *VerificationStore {
	if ttl <= 0 {
		ttl = otp.DefaultTTL
	}
	s := &VerificationStore{client: client, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(identifier string) string { return keyPrefix + identifier }

func (s *VerificationStore) Put(ctx context.Context, v *domain.PendingVerification) error {
	otp.Stamp(v, s.now().UTC(), s.ttl)
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	return s.client.Set(ctx, key(v.Identifier), raw, s.ttl+retention).Err()
}

func (s *VerificationStore) Peek(ctx context.Context, identifier string) (*domain.PendingVerification, error) {
	return decode(s.client.Get(ctx, key(identifier)))
}

// Verify runs under WATCH so that a Put racing with a successful check
// aborts the delete, and the superseding code survives.
func (s *VerificationStore) Verify(ctx context.Context, identifier, code string) (*domain.PendingVerification, error) {
	k := key(identifier)
	var result *domain.PendingVerification

	txf := func(tx *redis.Tx) error {
		v, err := decode(tx.Get(ctx, k))
		if err != nil {
			return err
		}
		checkErr := v.Check(code, s.now())
		if errors.Is(checkErr, domain.ErrCodeMismatch) {
			return checkErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		if err != nil {
			return err
		}
		if checkErr != nil {
			return checkErr
		}
		result = v
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, domain.ErrCodeNotFound
}

func (s *VerificationStore) Delete(ctx context.Context, identifier string) error {
	return s.client.Del(ctx, key(identifier)).Err()
}

func decode(cmd *redis.StringCmd) (*domain.PendingVerification, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	var v domain.PendingVerification
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode verification: %w", err)
	}
	return &v, nil
}
