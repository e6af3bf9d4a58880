package repository

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/gin-blog/internal/model"
	"github.com/d60-Lab/gin-blog/internal/testutil"
)

func TestCachedPostRepository_ReadThroughAndInvalidate(t *testing.T) {
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	author := seedUser(t, NewUserRepository(db), "writer")
	repo := NewCachedPostRepository(NewPostRepository(db), rdb, time.Minute)
	ctx := context.Background()

	first := &model.Post{ID: uuid.NewString(), Title: "one", AuthorID: author.ID, CoverRef: "ref-1"}
	require.NoError(t, repo.Create(ctx, first))

	posts, err := repo.ListRecent(ctx, RecentLimit)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, mr.Exists(recentPostsKey))

	// 命中缓存
	posts, err = repo.ListRecent(ctx, RecentLimit)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "writer", posts[0].Author.Username)
	assert.Equal(t, "ref-1", posts[0].CoverRef)
	hits, misses := repo.Counters()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// 新建帖子使列表失效
	second := &model.Post{ID: uuid.NewString(), Title: "two", AuthorID: author.ID, CreatedAt: time.Now().Add(time.Second)}
	require.NoError(t, repo.Create(ctx, second))
	assert.False(t, mr.Exists(recentPostsKey))
	posts, err = repo.ListRecent(ctx, RecentLimit)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "two", posts[0].Title)

	// 单条缓存保留 CoverRef，更新后失效
	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(postKey(first.ID)))
	got, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got.CoverRef)

	_, err = repo.Update(ctx, first.ID, PostFields{Title: "one!", CoverRef: "ref-1"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(postKey(first.ID)))
	assert.False(t, mr.Exists(recentPostsKey))
	got, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "one!", got.Title)
}

func TestCachedPostRepository_NotFoundIsNotCached(t *testing.T) {
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	repo := NewCachedPostRepository(NewPostRepository(db), rdb, time.Minute)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(postKey("nope")))
}

func TestCachedPostRepository_RedisDownFallsBack(t *testing.T) {
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	author := seedUser(t, NewUserRepository(db), "writer")
	repo := NewCachedPostRepository(NewPostRepository(db), rdb, time.Minute)
	ctx := context.Background()

	mr.Close()

	require.NoError(t, repo.Create(ctx, &model.Post{ID: uuid.NewString(), Title: "t", AuthorID: author.ID}))
	posts, err := repo.ListRecent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

// gatedPosts 第一次 ListRecent 查完库后阻塞，直到 release 关闭
type gatedPosts struct {
	PostRepository
	once    atomic.Bool
	queried chan struct{}
	release chan struct{}
}

func (g *gatedPosts) ListRecent(ctx context.Context, limit int) ([]*model.Post, error) {
	posts, err := g.PostRepository.ListRecent(ctx, limit)
	if g.once.CompareAndSwap(false, true) {
		close(g.queried)
		<-g.release
	}
	return posts, err
}

func TestCachedPostRepository_ConcurrentWriteSkipsStaleFill(t *testing.T) {
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	author := seedUser(t, NewUserRepository(db), "writer")
	gated := &gatedPosts{
		PostRepository: NewPostRepository(db),
		queried:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	repo := NewCachedPostRepository(gated, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Post{ID: uuid.NewString(), Title: "one", AuthorID: author.ID}))

	done := make(chan []*model.Post, 1)
	go func() {
		posts, err := repo.ListRecent(ctx, RecentLimit)
		assert.NoError(t, err)
		done <- posts
	}()

	select {
	case <-gated.queried:
	case <-time.After(2 * time.Second):
		t.Fatal("list did not reach the database")
	}
	// 读者已拿到旧的一页，此时写入
	require.NoError(t, repo.Create(ctx, &model.Post{
		ID: uuid.NewString(), Title: "two", AuthorID: author.ID, CreatedAt: time.Now().Add(time.Second),
	}))
	close(gated.release)

	stale := <-done
	assert.Len(t, stale, 1)
	assert.False(t, mr.Exists(recentPostsKey), "stale page must not be cached")

	posts, err := repo.ListRecent(ctx, RecentLimit)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "two", posts[0].Title)
	assert.True(t, mr.Exists(recentPostsKey))
}
