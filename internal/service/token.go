package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/repository"
	"osaccount/pkg/idgen"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const tokenIssuer = "osaccount"

// AuthTokenService 认证令牌服务
// 令牌是HS256签名的JWT，jti记录在TokenStore中，只能被消费一次
type AuthTokenService struct {
	secret []byte
	ttl    time.Duration
	store  repository.TokenStore
	clock  clockwork.Clock
}

// NewAuthTokenService 创建认证令牌服务
func NewAuthTokenService(secret []byte, ttl time.Duration, store repository.TokenStore, clock clockwork.Clock) *AuthTokenService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AuthTokenService{secret: secret, ttl: ttl, store: store, clock: clock}
}

// Issue 为认证成功的账号签发令牌
func (s *AuthTokenService) Issue(ctx context.Context, localID int, authType model.AuthType, trustLevel model.AuthTrustLevel, challenge uint64) ([]byte, error) {
	now := s.clock.Now()
	claims := model.AuthTokenClaims{
		LocalID:    localID,
		AuthType:   authType,
		TrustLevel: trustLevel,
		Challenge:  challenge,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idgen.NewKSUID(),
			Issuer:    tokenIssuer,
			Subject:   strconv.Itoa(localID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign auth token: %w", err)
	}
	if err := s.store.Save(ctx, claims.ID, localID, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to save auth token: %w", err)
	}
	return []byte(signed), nil
}

// parse 校验签名、有效期以及账号与挑战值的绑定
func (s *AuthTokenService) parse(token []byte, localID int, challenge uint64) (*model.AuthTokenClaims, error) {
	if len(token) == 0 {
		return nil, ErrTokenRequired
	}
	var claims model.AuthTokenClaims
	_, err := jwt.ParseWithClaims(string(token), &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.LocalID != localID {
		return nil, fmt.Errorf("%w: token issued for account %d", ErrInvalidToken, claims.LocalID)
	}
	if challenge != 0 && claims.Challenge != challenge {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, ErrChallengeMismatch)
	}
	return &claims, nil
}

// Consume 校验并消费令牌，challenge为0时不校验挑战值
func (s *AuthTokenService) Consume(ctx context.Context, token []byte, localID int, challenge uint64) (*model.AuthTokenClaims, error) {
	claims, err := s.parse(token, localID, challenge)
	if err != nil {
		return nil, err
	}
	owner, ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume auth token: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: token already used or expired", ErrInvalidToken)
	}
	if owner != localID {
		return nil, fmt.Errorf("%w: token owner mismatch", ErrInvalidToken)
	}
	log.Printf("[DEBUG] 消费认证令牌: local_id=%d, jti=%s", localID, claims.ID)
	return claims, nil
}

// Revoke 作废令牌
func (s *AuthTokenService) Revoke(ctx context.Context, token []byte) error {
	var claims model.AuthTokenClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(string(token), &claims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return errors.New("token has no id")
	}
	return s.store.Revoke(ctx, claims.ID)
}
