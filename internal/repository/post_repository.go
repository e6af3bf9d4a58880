package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/gin-blog/internal/model"
)

// RecentLimit 列表固定页大小
const RecentLimit = 20

// PostFields 可编辑字段
type PostFields struct {
	Title    string
	Summary  string
	Content  string
	Cover    string
	CoverRef string
}

// PostRepository 帖子存储
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	// GetByID 预加载作者；不存在返回 ErrNotFound
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// ListRecent 按 created_at 倒序，最多 limit 条，预加载作者
	ListRecent(ctx context.Context, limit int) ([]*model.Post, error)
	// Update 覆盖可编辑字段并返回最新记录
	Update(ctx context.Context, id string, fields PostFields) (*model.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func withAuthor(db *gorm.DB) *gorm.DB {
	return db.Preload("Author", func(tx *gorm.DB) *gorm.DB {
		return tx.Select("id", "username")
	})
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Omit("Author").Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := withAuthor(r.db.WithContext(ctx)).Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	posts := make([]*model.Post, 0, limit)
	err := withAuthor(r.db.WithContext(ctx)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, id string, fields PostFields) (*model.Post, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":     fields.Title,
			"summary":   fields.Summary,
			"content":   fields.Content,
			"cover":     fields.Cover,
			"cover_ref": fields.CoverRef,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}
