package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Corphon/NovelGenPage/internal/scenario"
)

var (
	// ErrUploadUnavailable 会话未配置上传函数
	ErrUploadUnavailable = errors.New("editor: image upload not configured")
	// ErrRejected 上传被拒绝（格式或大小），不再重试
	ErrRejected = errors.New("editor: upload rejected")
)

// Upload 待上传的图片
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadFunc 上传图片并返回可嵌入的 URL
type UploadFunc func(ctx context.Context, up Upload) (string, error)

// UploadResult 异步上传的结果
type UploadResult struct {
	URL      string
	Err      error
	Snapshot Snapshot
}

// RetryPolicy 上传重试策略
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	retries := p.MaxRetries
	if retries == 0 {
		retries = 3
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// UploadImage 在后台上传图片，成功后在 index 处插入图片嵌入
// 结果通道只发送一次后关闭
func (s *Session) UploadImage(ctx context.Context, up Upload, index int) <-chan UploadResult {
	results := make(chan UploadResult, 1)
	if s.cfg.Upload == nil {
		results <- UploadResult{Err: ErrUploadUnavailable, Snapshot: s.Snapshot()}
		close(results)
		return results
	}

	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()
		defer close(results)

		url, err := s.upload(ctx, up)
		if err != nil {
			s.logger.Warn("图片上传失败", map[string]interface{}{
				"file": up.Filename, "error": err.Error(),
			})
			results <- UploadResult{Err: err, Snapshot: s.Snapshot()}
			return
		}
		snap := s.InsertEmbed(index, scenario.EmbedImage, url)
		results <- UploadResult{URL: url, Snapshot: snap}
	}()
	return results
}

// Wait 等待所有进行中的上传结束
func (s *Session) Wait() {
	s.uploads.Wait()
}

func (s *Session) upload(ctx context.Context, up Upload) (string, error) {
	var url string
	attempts := 0
	op := func() error {
		attempts++
		u, err := s.cfg.Upload(ctx, up)
		switch {
		case err == nil:
			url = u
			return nil
		case errors.Is(err, ErrRejected), ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			return err
		}
	}
	if err := backoff.Retry(op, s.cfg.Retry.backOff(ctx)); err != nil {
		return "", fmt.Errorf("upload %s failed after %d attempt(s): %w", up.Filename, attempts, err)
	}
	if url == "" {
		return "", fmt.Errorf("upload %s: empty url", up.Filename)
	}
	return url, nil
}
