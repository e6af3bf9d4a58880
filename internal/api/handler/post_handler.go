package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/gin-blog/internal/api/middleware"
	"github.com/d60-Lab/gin-blog/internal/service"
	"github.com/d60-Lab/gin-blog/internal/upload"
	"github.com/d60-Lab/gin-blog/pkg/response"
)

type createPostRequest struct {
	Title   string `form:"title" binding:"required"`
	Summary string `form:"summary"`
	Content string `form:"content"`
}

func (r createPostRequest) input() service.PostInput {
	return service.PostInput{Title: r.Title, Summary: r.Summary, Content: r.Content}
}

// updatePostRequest 字段整体覆盖，与创建不同 title 可为空
type updatePostRequest struct {
	ID      string `form:"id" binding:"required,notblank"`
	Title   string `form:"title"`
	Summary string `form:"summary"`
	Content string `form:"content"`
}

func (r updatePostRequest) input() service.PostInput {
	return service.PostInput{Title: r.Title, Summary: r.Summary, Content: r.Content}
}

// CreatePost 发布文章
// @Summary 发布文章
// @Tags 文章
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "封面"
// @Param title formData string true "标题"
// @Param summary formData string false "摘要"
// @Param content formData string false "正文"
// @Success 200 {object} model.Post
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 502 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /post [post]
func (h *Handler) CreatePost(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	var req createPostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cover, err := readCover(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Create(c.Request.Context(), middleware.ClaimsFrom(c), req.input(), cover)
	if err != nil {
		h.writePostError(c, err)
		return
	}
	response.Success(c, post)
}

// UpdatePost 编辑文章（仅作者）
// @Summary 编辑文章
// @Tags 文章
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "新封面，缺省保留原封面"
// @Param id formData string true "文章ID"
// @Param title formData string false "标题"
// @Param summary formData string false "摘要"
// @Param content formData string false "正文"
// @Success 200 {object} model.Post
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /post [put]
func (h *Handler) UpdatePost(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	var req updatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cover, err := readCover(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Update(c.Request.Context(), middleware.ClaimsFrom(c), req.ID, req.input(), cover)
	if err != nil {
		h.writePostError(c, err)
		return
	}
	response.Success(c, post)
}

// ListPosts 最近文章
// @Summary 文章列表（最新 20 篇）
// @Tags 文章
// @Produce json
// @Success 200 {array} model.Post
// @Failure 500 {object} response.Response
// @Router /post [get]
func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.postService.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, posts)
}

// GetPost 文章详情，不存在时返回 null
// @Summary 文章详情
// @Tags 文章
// @Produce json
// @Param id path string true "文章ID"
// @Success 200 {object} model.Post
// @Failure 500 {object} response.Response
// @Router /post/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, post)
}

func (h *Handler) writePostError(c *gin.Context, err error) {
	var ue *upload.UploadError
	switch {
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrUserNotFound):
		response.Unauthorized(c, "invalid token")
	case errors.Is(err, service.ErrPostNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNotAuthor):
		response.BadRequest(c, err.Error())
	case errors.As(err, &ue):
		response.BadGateway(c, ue.Message)
	default:
		response.InternalError(c, err)
	}
}

// readCover 读取可选的 file 字段；没有文件时返回 nil
func readCover(c *gin.Context) (*service.CoverFile, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return &service.CoverFile{Data: data, MIME: mimeType}, nil
}
