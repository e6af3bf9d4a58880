package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims token 中携带的身份信息
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenDenylist 已注销 token 的 jti 集合
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager 签发/校验 HS256 会话 token
type TokenManager struct {
	secret    []byte
	ttl       time.Duration
	revokeTTL time.Duration
	denylist  TokenDenylist
	now       func() time.Time
}

// NewTokenManager ttl 为 0 时不写 exp；denylist 可为 nil
func NewTokenManager(secret string, ttl, revokeTTL time.Duration, denylist TokenDenylist) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		ttl:       ttl,
		revokeTTL: revokeTTL,
		denylist:  denylist,
		now:       time.Now,
	}
}

func (m *TokenManager) Issue(userID, username string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify 任何失败（空、格式错误、签名不符、算法不符、过期、已注销）都返回 ErrInvalidToken
func (m *TokenManager) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if m.denylist != nil && claims.ID != "" {
		revoked, err := m.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// Revoke 将 token 加入黑名单直到其自然过期；未配置黑名单时为空操作
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if m.denylist == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := m.revokeTTL
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(m.now())
	}
	if ttl <= 0 {
		return nil
	}
	return m.denylist.Revoke(ctx, claims.ID, ttl)
}

// IsInvalidToken 便于调用方区分鉴权失败与基础设施错误
func IsInvalidToken(err error) bool { return errors.Is(err, ErrInvalidToken) }
