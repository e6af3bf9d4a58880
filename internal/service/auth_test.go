package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/gin-blog/internal/repository"
	"github.com/d60-Lab/gin-blog/internal/testutil"
)

const testSecret = "unit-test-secret"

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	d1, err := h.Hash("hunter2")
	require.NoError(t, err)
	d2, err := h.Hash("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, "hunter2", d1)
	assert.NotEqual(t, d1, d2, "salt must differ per hash")
	assert.True(t, h.Verify("hunter2", d1))
	assert.True(t, h.Verify("hunter2", d2))
	assert.False(t, h.Verify("hunter3", d1))
	assert.False(t, h.Verify("hunter2", ""))
	assert.False(t, h.Verify("hunter2", "not-a-bcrypt-digest"))
}

func TestPasswordHasher_LongPassword(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	long := strings.Repeat("x", 100)

	digest, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(long, digest))

	// 超过 72 字节的部分同样参与比较
	assert.False(t, h.Verify(strings.Repeat("x", 99)+"y", digest))
	assert.False(t, h.Verify(strings.Repeat("x", 72), digest))
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(99).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, 0, nil)
	token, err := m.Issue("u-1", "alice")
	require.NoError(t, err)

	claims, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestTokenManager_NoExpiry(t *testing.T) {
	m := NewTokenManager(testSecret, 0, 0, nil)
	token, err := m.Issue("u-1", "alice")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(10 * 365 * 24 * time.Hour) }
	claims, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, 0, nil)
	good, err := m.Issue("u-1", "alice")
	require.NoError(t, err)

	other, err := NewTokenManager("another-secret", time.Hour, 0, nil).Issue("u-1", "alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1", Username: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "u-1", Username: "alice"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	tampered := good[:len(good)-2] + "xx"
	if tampered == good {
		tampered = good[:len(good)-2] + "yy"
	}

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"tampered":     tampered,
		"wrong secret": other,
		"alg none":     none,
		"wrong alg":    hs512,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, 0, nil)
	base := time.Now()
	m.now = func() time.Time { return base }
	token, err := m.Issue("u-1", "alice")
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = m.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Revoke(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	m := NewTokenManager(testSecret, time.Hour, 24*time.Hour, NewRedisDenylist(client))
	ctx := context.Background()

	token, err := m.Issue("u-1", "alice")
	require.NoError(t, err)
	claims, err := m.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, claims))
	ttl := mr.TTL(revokedKeyPrefix + claims.ID)
	assert.True(t, ttl > 0 && ttl <= time.Hour, "ttl %s", ttl)

	_, err = m.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	fresh, err := m.Issue("u-1", "alice")
	require.NoError(t, err)
	_, err = m.Verify(ctx, fresh)
	assert.NoError(t, err)
}

func TestTokenManager_DenylistFailure(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	m := NewTokenManager(testSecret, time.Hour, 0, NewRedisDenylist(client))
	token, err := m.Issue("u-1", "alice")
	require.NoError(t, err)

	mr.Close()
	_, err = m.Verify(context.Background(), token)
	require.Error(t, err)
	assert.False(t, IsInvalidToken(err))
}

func newUserService(t *testing.T, tokens *TokenManager) (UserService, repository.UserRepository) {
	t.Helper()
	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)
	return NewUserService(users, NewPasswordHasher(bcrypt.MinCost), tokens), users
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	tokens := NewTokenManager(testSecret, time.Hour, 0, nil)
	svc, users := newUserService(t, tokens)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "pw", user.Password)

	stored, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)

	_, err = svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	loggedIn, token, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	claims, err := svc.Profile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "bob", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_Logout(t *testing.T) {
	_, client := testutil.NewRedis(t)
	tokens := NewTokenManager(testSecret, time.Hour, 0, NewRedisDenylist(client))
	svc, _ := newUserService(t, tokens)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Profile(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.NoError(t, svc.Logout(ctx, ""))
	assert.NoError(t, svc.Logout(ctx, "garbage"))
}
