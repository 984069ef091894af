package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// CredentialProvider supplies the bearer token for backend calls. The
// gateway calls Invalidate when the backend answers 401.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// errNoCredential means the provider holds no token; the operator must log in.
var errNoCredential = errors.New(errors.ErrCodeUnauthorized, "Session expirée, veuillez vous reconnecter")

// StaticCredentials holds a token in memory
type StaticCredentials struct {
	mu    sync.RWMutex
	token string
}

// NewStaticCredentials creates a provider seeded with token
func NewStaticCredentials(token string) *StaticCredentials {
	return &StaticCredentials{token: token}
}

// Token returns the current token
func (s *StaticCredentials) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", errNoCredential
	}
	return s.token, nil
}

// Set replaces the token, typically after the operator logs in again
func (s *StaticCredentials) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Invalidate forgets the token
func (s *StaticCredentials) Invalidate(ctx context.Context) error {
	s.Set("")
	return nil
}

// RedisCredentialProvider reads the token from a Redis key shared by every
// instance of the service, so a 401 seen by one instance logs out all of them.
type RedisCredentialProvider struct {
	rdb *redis.Client
	key string
}

// NewRedisCredentialProvider creates a provider reading key
func NewRedisCredentialProvider(rdb *redis.Client, key string) *RedisCredentialProvider {
	return &RedisCredentialProvider{rdb: rdb, key: key}
}

// Token returns the stored token
func (p *RedisCredentialProvider) Token(ctx context.Context) (string, error) {
	token, err := p.rdb.Get(ctx, p.key).Result()
	if err == redis.Nil || (err == nil && token == "") {
		return "", errNoCredential
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, fmt.Sprintf("lecture du jeton %s impossible", p.key))
	}
	return token, nil
}

// Invalidate deletes the stored token
func (p *RedisCredentialProvider) Invalidate(ctx context.Context) error {
	if err := p.rdb.Del(ctx, p.key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "suppression du jeton impossible")
	}
	return nil
}
