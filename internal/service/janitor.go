package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/pkg/logger"
)

// ImageRemover 删除图床上的资源
type ImageRemover interface {
	Delete(ctx context.Context, ref string) error
}

type cleanupJob struct {
	ref    string
	reason string
	enqAt  time.Time
}

// ImageJanitor 本地异步清理孤儿图片（上传成功但写库失败、封面被替换）。
// 队列不持久化，进程退出时未处理的任务丢失。
type ImageJanitor struct {
	remover   ImageRemover
	ch        chan cleanupJob
	timeout   time.Duration
	metricsCh chan time.Duration
}

func NewImageJanitor(remover ImageRemover, queueSize int, timeout time.Duration) *ImageJanitor {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageJanitor{remover: remover, ch: make(chan cleanupJob, queueSize), timeout: timeout, metricsCh: make(chan time.Duration, 1024)}
}

// Start 启动 workers 个消费者；返回的函数停止消费并等待队列排空（受 ctx 限制）
func (j *ImageJanitor) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-j.ch:
					j.process(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		wg.Wait()
		for {
			select {
			case job := <-j.ch:
				j.process(job)
			case <-ctx.Done():
				if n := len(j.ch); n > 0 {
					logger.Warn("image janitor stopped with pending jobs", zap.Int("pending", n))
				}
				return ctx.Err()
			default:
				return nil
			}
		}
	}
}

func (j *ImageJanitor) process(job cleanupJob) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.remover.Delete(ctx, job.ref); err != nil {
		logger.Warn("orphaned image cleanup failed",
			zap.String("ref", job.ref), zap.String("reason", job.reason), zap.Error(err))
	} else {
		logger.Debug("orphaned image removed", zap.String("ref", job.ref), zap.String("reason", job.reason))
	}
	select {
	case j.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// Enqueue 非阻塞入队；队列满时丢弃并告警
func (j *ImageJanitor) Enqueue(ref, reason string) {
	if ref == "" {
		return
	}
	select {
	case j.ch <- cleanupJob{ref: ref, reason: reason, enqAt: time.Now()}:
	default:
		logger.Warn("image janitor queue full, drop", zap.String("ref", ref), zap.String("reason", reason))
	}
}

// Metrics 每处理一条发送一次入队到完成的耗时
func (j *ImageJanitor) Metrics() <-chan time.Duration { return j.metricsCh }

// QueueLen 当前队列长度（采样值）
func (j *ImageJanitor) QueueLen() int { return len(j.ch) }
