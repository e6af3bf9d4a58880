package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/gin-blog/internal/model"
	"github.com/d60-Lab/gin-blog/internal/repository"
	"github.com/d60-Lab/gin-blog/pkg/database"
)

// 读请求：detail 为空表示列表页
type request struct {
	detail string
}

func main() {
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable"
	}
	db := must(gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}))

	mustDo(db.Exec("DROP TABLE IF EXISTS posts CASCADE").Error)
	mustDo(db.Exec("DROP TABLE IF EXISTS users CASCADE").Error)
	mustDo(database.Migrate(db))

	const (
		authorCount  = 200
		postCount    = 50000
		requestCount = 9000
		ttl          = 10 * time.Minute
	)

	fmt.Println("Setting up test data...")
	authors := make([]model.User, authorCount)
	for i := range authors {
		authors[i] = model.User{ID: uuid.NewString(), Username: fmt.Sprintf("author_%d", i), Password: "secret"}
	}
	mustDo(db.CreateInBatches(&authors, 1000).Error)

	posts := make([]model.Post, postCount)
	base := time.Now()
	for i := range posts {
		posts[i] = model.Post{
			ID:        uuid.NewString(),
			Title:     fmt.Sprintf("post %d", i),
			Summary:   "summary",
			Content:   strings.Repeat("lorem ipsum ", 200),
			Cover:     "https://img.example.com/covers/" + strconv.Itoa(i),
			AuthorID:  authors[i%authorCount].ID,
			CreatedAt: base.Add(-time.Duration(i) * time.Second),
		}
	}
	mustDo(db.Omit("Author").CreateInBatches(&posts, 1000).Error)
	fmt.Printf("Test data ready: %d authors, %d posts\n", authorCount, postCount)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6380"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	// 详情请求集中在最新的 1000 篇，其余为列表页
	hot := make([]string, 1000)
	for i := range hot {
		hot[i] = posts[i].ID
	}
	reqs := makeRequests(requestCount, hot)

	plain := repository.NewPostRepository(db)
	cached := repository.NewCachedPostRepository(plain, client, ttl)

	noCache := runScenario(ctx, plain, reqs, false, client)
	withCache := runScenario(ctx, cached, reqs, true, client)
	hits, misses := cached.Counters()

	fmt.Printf("\nPost read latency (%d req, %d posts, PostgreSQL + Redis)\n", requestCount, postCount)
	fmt.Printf("%-12s avg=%v p95=%v p99=%v cache_keys=%d mem=%s\n",
		"No cache", avg(noCache.durations), pct(noCache.durations, 0.95), pct(noCache.durations, 0.99),
		noCache.cacheKeys, formatBytes(noCache.memoryBytes),
	)
	fmt.Printf("%-12s avg=%v p95=%v p99=%v cache_keys=%d mem=%s hits=%d misses=%d\n",
		"Redis cache", avg(withCache.durations), pct(withCache.durations, 0.95), pct(withCache.durations, 0.99),
		withCache.cacheKeys, formatBytes(withCache.memoryBytes), hits, misses,
	)
}

type scenarioResult struct {
	durations   []time.Duration
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, repo repository.PostRepository, reqs []request, warm bool, client *redis.Client) scenarioResult {
	client.FlushAll(ctx)

	call := func(r request) error {
		if r.detail == "" {
			_, err := repo.ListRecent(ctx, repository.RecentLimit)
			return err
		}
		_, err := repo.GetByID(ctx, r.detail)
		return err
	}

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			mustDo(call(r))
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		mustDo(call(r))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.DBSize(ctx).Result()
	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: out, cacheKeys: int(keys), memoryBytes: memBytes}
}

// parseRedisMemory 取 INFO memory 中的 used_memory
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func makeRequests(n int, hot []string) []request {
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		if rnd.Float64() < 0.6 {
			continue
		}
		out[i] = request{detail: hot[rnd.Intn(len(hot))]}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
