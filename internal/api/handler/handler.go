package handler

import (
	"time"

	"github.com/d60-Lab/gin-blog/internal/service"
)

// Options 与 HTTP 传输相关的处理参数
type Options struct {
	// SecureCookie release 模式下为 true
	SecureCookie bool
	// TokenTTL 决定 cookie 的 Max-Age；0 表示会话 cookie
	TokenTTL       time.Duration
	MaxUploadBytes int64
}

type Handler struct {
	userService service.UserService
	postService service.PostService
	opts        Options
}

func NewHandler(userService service.UserService, postService service.PostService, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{userService: userService, postService: postService, opts: opts}
}
