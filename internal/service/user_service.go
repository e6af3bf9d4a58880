package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/d60-Lab/gin-blog/internal/model"
	"github.com/d60-Lab/gin-blog/internal/repository"
)

// UserService 注册、登录、会话
type UserService interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	// Login 成功时返回用户与新签发的 token
	Login(ctx context.Context, username, password string) (*model.User, string, error)
	Profile(ctx context.Context, token string) (*Claims, error)
	Logout(ctx context.Context, token string) error
}

type userService struct {
	users  repository.UserRepository
	hasher *PasswordHasher
	tokens *TokenManager
}

func NewUserService(users repository.UserRepository, hasher *PasswordHasher, tokens *TokenManager) UserService {
	return &userService{users: users, hasher: hasher, tokens: tokens}
}

func (s *userService) Register(ctx context.Context, username, password string) (*model.User, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{ID: uuid.NewString(), Username: username, Password: digest}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Verify(password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *userService) Profile(ctx context.Context, token string) (*Claims, error) {
	return s.tokens.Verify(ctx, token)
}

// Logout 注销当前 token；token 无效时无需处理
func (s *userService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		if IsInvalidToken(err) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, claims)
}
