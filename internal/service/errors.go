package service

import "errors"

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("wrong credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotAuthor          = errors.New("you are not the author")
	ErrPostNotFound       = errors.New("post not found")
	ErrUserNotFound       = errors.New("user not found")
)
