package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/internal/model"
	"github.com/d60-Lab/gin-blog/pkg/logger"
)

const (
	recentPostsKey = "posts:recent"
	// generationKey 每次写操作自增；读穿透只在代数未变时回填
	generationKey = "posts:gen"
)

var errStaleGeneration = errors.New("post cache generation changed")

func postKey(id string) string { return fmt.Sprintf("post:%s", id) }

// postSnapshot 缓存形态；CoverRef 在 API JSON 中隐藏，这里需要保留
type postSnapshot struct {
	model.Post
	Ref string `json:"coverRef,omitempty"`
}

func snapshotOf(p *model.Post) postSnapshot { return postSnapshot{Post: *p, Ref: p.CoverRef} }

func (s postSnapshot) post() *model.Post {
	p := s.Post
	p.CoverRef = s.Ref
	return &p
}

var _ PostRepository = (*CachedPostRepository)(nil)

// CachedPostRepository 在 PostRepository 之上做 redis 读缓存，写操作失效相关 key。
// 回填前用 WATCH 校验 generationKey，查库期间发生过写入则放弃回填。
// 缓存故障只降级为直读数据库。
type CachedPostRepository struct {
	inner PostRepository
	cache *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedPostRepository(inner PostRepository, cache *redis.Client, ttl time.Duration) *CachedPostRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedPostRepository{inner: inner, cache: cache, ttl: ttl}
}

func (r *CachedPostRepository) Create(ctx context.Context, post *model.Post) error {
	if err := r.inner.Create(ctx, post); err != nil {
		return err
	}
	r.invalidate(ctx, recentPostsKey)
	return nil
}

func (r *CachedPostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var cached postSnapshot
	if r.load(ctx, postKey(id), &cached) {
		return cached.post(), nil
	}
	gen, ok := r.generation(ctx)
	post, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		r.store(ctx, postKey(id), gen, snapshotOf(post))
	}
	return post, nil
}

func (r *CachedPostRepository) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	var cached []postSnapshot
	if r.load(ctx, recentPostsKey, &cached) {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		posts := make([]*model.Post, len(cached))
		for i, s := range cached {
			posts[i] = s.post()
		}
		return posts, nil
	}
	// 总是缓存完整一页，limit 只裁剪返回值
	gen, ok := r.generation(ctx)
	posts, err := r.inner.ListRecent(ctx, RecentLimit)
	if err != nil {
		return nil, err
	}
	if ok {
		snaps := make([]postSnapshot, len(posts))
		for i, p := range posts {
			snaps[i] = snapshotOf(p)
		}
		r.store(ctx, recentPostsKey, gen, snaps)
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (r *CachedPostRepository) Update(ctx context.Context, id string, fields PostFields) (*model.Post, error) {
	post, err := r.inner.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, recentPostsKey, postKey(id))
	return post, nil
}

// Counters 命中/未命中次数
func (r *CachedPostRepository) Counters() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func (r *CachedPostRepository) load(ctx context.Context, key string, dst any) bool {
	data, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("post cache get failed", zap.String("key", key), zap.Error(err))
		}
		r.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.misses.Add(1)
		return false
	}
	r.hits.Add(1)
	return true
}

// generation 读取当前代数；redis 不可用时 ok 为 false，调用方不回填
func (r *CachedPostRepository) generation(ctx context.Context) (gen int64, ok bool) {
	gen, err := r.cache.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("post cache generation read failed", zap.Error(err))
		return 0, false
	}
	return gen, true
}

// store 仅当代数仍为 gen 时写入
func (r *CachedPostRepository) store(ctx context.Context, key string, gen int64, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	err = r.cache.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, generationKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		logger.Debug("post cache fill skipped, concurrent write", zap.String("key", key))
	default:
		logger.Warn("post cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *CachedPostRepository) invalidate(ctx context.Context, keys ...string) {
	_, err := r.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		logger.Warn("post cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
