package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"CreativeStudio-server/config"
	"CreativeStudio-server/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStore 把生成的帧落到 MinIO，并为存储引用签发短期 URL
type ObjectStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	domain   *url.URL
	log      *zap.Logger

	mu      sync.Mutex
	ensured bool
}

func NewObjectStore(cfg config.MinIOConfig, log *zap.Logger) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	s := &ObjectStore{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.ToLower(cfg.Endpoint),
		log:      logger.OrNop(log),
	}
	if cfg.Domain != "" {
		d, err := url.Parse(strings.TrimRight(cfg.Domain, "/"))
		if err != nil || d.Host == "" {
			return nil, fmt.Errorf("invalid minio domain %q", cfg.Domain)
		}
		s.domain = d
	}
	return s, nil
}

// ensureBucket 首次写入时确保 bucket 存在
func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		s.log.Info("bucket created", zap.String("bucket", s.bucket))
	}
	s.ensured = true
	return nil
}

// Put 上传后返回持久地址：配置了公开域名时返回公开 URL，否则返回 minio:// 引用
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}
	s.log.Debug("object uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return s.ObjectURL(key), nil
}

func (s *ObjectStore) ObjectURL(key string) string {
	if s.domain != nil {
		return s.domain.String() + "/" + key
	}
	return "minio://" + s.bucket + "/" + key
}

// Presign 只识别本存储的引用；其他 URL 原样交回调用方
func (s *ObjectStore) Presign(ctx context.Context, ref string, ttl time.Duration) (string, bool, error) {
	bucket, key, ok := s.parseRef(ref)
	if !ok {
		return "", false, nil
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", true, fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return u.String(), true, nil
}

// parseRef 支持 s3://bucket/key、minio://bucket/key、公开域名下的地址以及 endpoint 的 path-style 地址
func (s *ObjectStore) parseRef(ref string) (bucket, key string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "s3", "minio":
		if key = strings.TrimPrefix(u.Path, "/"); key == "" {
			return "", "", false
		}
		return u.Host, key, true
	case "http", "https":
	default:
		return "", "", false
	}

	host := strings.ToLower(u.Host)
	if s.domain != nil && host == strings.ToLower(s.domain.Host) {
		prefix := strings.TrimRight(s.domain.Path, "/") + "/"
		if !strings.HasPrefix(u.Path, prefix) {
			return "", "", false
		}
		if key = strings.TrimPrefix(u.Path, prefix); key == "" {
			return "", "", false
		}
		return s.bucket, key, true
	}
	if host == s.endpoint {
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	return "", "", false
}
