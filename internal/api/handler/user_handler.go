package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/internal/api/middleware"
	"github.com/d60-Lab/gin-blog/internal/service"
	"github.com/d60-Lab/gin-blog/pkg/logger"
	"github.com/d60-Lab/gin-blog/pkg/response"
)

type credentialsRequest struct {
	Username string `json:"username" form:"username" binding:"required,notblank"`
	Password string `json:"password" form:"password" binding:"required"`
}

type loginResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Register 注册
// @Summary 注册用户
// @Tags 用户
// @Accept json
// @Produce json
// @Param request body credentialsRequest true "用户名与密码"
// @Success 200 {object} model.User
// @Failure 400 {object} response.Response
// @Router /register [post]
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrUsernameTaken) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("register failed", zap.String("username", req.Username), zap.Error(err))
		response.BadRequest(c, "registration failed")
		return
	}
	response.Success(c, user)
}

// Login 登录，token 写入 cookie
// @Summary 登录
// @Tags 用户
// @Accept json
// @Produce json
// @Param request body credentialsRequest true "用户名与密码"
// @Success 200 {object} loginResponse
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /login [post]
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, token, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	h.setTokenCookie(c, token, int(h.opts.TokenTTL.Seconds()))
	response.Success(c, loginResponse{ID: user.ID, Username: user.Username})
}

// Profile 返回当前 token 的 claims
// @Summary 当前用户
// @Tags 用户
// @Produce json
// @Success 200 {object} service.Claims
// @Failure 401 {object} response.Response
// @Router /profile [get]
func (h *Handler) Profile(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	response.Success(c, claims)
}

// Logout 清除 cookie；启用黑名单时同时注销 token
// @Summary 退出登录
// @Tags 用户
// @Produce json
// @Success 200 {string} string "ok"
// @Router /logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(middleware.TokenCookie); err == nil && token != "" {
		if err := h.userService.Logout(c.Request.Context(), token); err != nil {
			logger.Warn("token revoke failed", zap.Error(err))
		}
	}
	h.setTokenCookie(c, "", -1)
	response.Success(c, "ok")
}

func (h *Handler) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middleware.TokenCookie, value, maxAge, "/", "", h.opts.SecureCookie, true)
}
