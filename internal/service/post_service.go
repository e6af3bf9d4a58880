package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/internal/model"
	"github.com/d60-Lab/gin-blog/internal/repository"
	"github.com/d60-Lab/gin-blog/internal/upload"
	"github.com/d60-Lab/gin-blog/pkg/logger"
)

// PostInput 文章可编辑字段
type PostInput struct {
	Title   string
	Summary string
	Content string
}

// CoverFile 请求中上传的封面（已读入内存）
type CoverFile struct {
	Data []byte
	MIME string
}

// PostService 文章读写。写操作先完成鉴权与作者校验，再上传封面
type PostService interface {
	Create(ctx context.Context, claims *Claims, in PostInput, cover *CoverFile) (*model.Post, error)
	Update(ctx context.Context, claims *Claims, id string, in PostInput, cover *CoverFile) (*model.Post, error)
	// List 最近的文章，最多 repository.RecentLimit 条
	List(ctx context.Context) ([]*model.Post, error)
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, id string) (*model.Post, error)
}

type postService struct {
	posts         repository.PostRepository
	users         repository.UserRepository
	relay         upload.Relay
	janitor       *ImageJanitor
	uploadTimeout time.Duration
}

// NewPostService janitor 可为 nil，此时孤儿图片只记录日志
func NewPostService(posts repository.PostRepository, users repository.UserRepository, relay upload.Relay, janitor *ImageJanitor, uploadTimeout time.Duration) PostService {
	return &postService{
		posts:         posts,
		users:         users,
		relay:         relay,
		janitor:       janitor,
		uploadTimeout: uploadTimeout,
	}
}

func (s *postService) Create(ctx context.Context, claims *Claims, in PostInput, cover *CoverFile) (*model.Post, error) {
	if claims == nil {
		return nil, ErrInvalidToken
	}
	author, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}

	img, err := s.uploadCover(ctx, cover)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:       uuid.NewString(),
		Title:    in.Title,
		Summary:  in.Summary,
		Content:  in.Content,
		Cover:    img.URL,
		CoverRef: img.Ref,
		AuthorID: author.ID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.discard(img.Ref, "create failed")
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = &model.Author{ID: author.ID, Username: author.Username}
	return post, nil
}

func (s *postService) Update(ctx context.Context, claims *Claims, id string, in PostInput, cover *CoverFile) (*model.Post, error) {
	if claims == nil {
		return nil, ErrInvalidToken
	}
	current, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if current.AuthorID != claims.UserID {
		return nil, ErrNotAuthor
	}

	fields := repository.PostFields{
		Title:    in.Title,
		Summary:  in.Summary,
		Content:  in.Content,
		Cover:    current.Cover,
		CoverRef: current.CoverRef,
	}
	img, err := s.uploadCover(ctx, cover)
	if err != nil {
		return nil, err
	}
	if img.URL != "" {
		fields.Cover, fields.CoverRef = img.URL, img.Ref
	}

	updated, err := s.posts.Update(ctx, id, fields)
	if err != nil {
		s.discard(img.Ref, "update failed")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("update post: %w", err)
	}
	if img.Ref != "" && current.CoverRef != img.Ref {
		s.discard(current.CoverRef, "cover replaced")
	}
	return updated, nil
}

func (s *postService) List(ctx context.Context) ([]*model.Post, error) {
	return s.posts.ListRecent(ctx, repository.RecentLimit)
}

func (s *postService) Get(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return post, err
}

// uploadCover cover 为空时返回零值 Image
func (s *postService) uploadCover(ctx context.Context, cover *CoverFile) (upload.Image, error) {
	if cover == nil || len(cover.Data) == 0 {
		return upload.Image{}, nil
	}
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}
	img, err := s.relay.Upload(ctx, cover.Data, cover.MIME)
	if err != nil {
		var ue *upload.UploadError
		if errors.As(err, &ue) {
			return upload.Image{}, ue
		}
		return upload.Image{}, &upload.UploadError{Status: http.StatusBadGateway, Message: err.Error(), Err: err}
	}
	return img, nil
}

func (s *postService) discard(ref, reason string) {
	if ref == "" {
		return
	}
	if s.janitor == nil {
		logger.Warn("orphaned image left on host", zap.String("ref", ref), zap.String("reason", reason))
		return
	}
	s.janitor.Enqueue(ref, reason)
}
