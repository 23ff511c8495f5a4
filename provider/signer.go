package provider

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// URLSigner 把持久的存储引用换成短期可访问地址；
// ref 不属于本存储时 recognized 为 false
type URLSigner interface {
	Presign(ctx context.Context, ref string, ttl time.Duration) (signed string, recognized bool, err error)
}

// CachedSigner 签名地址在过期前复用
type CachedSigner struct {
	signer URLSigner
	ttl    time.Duration
	cache  *cache.Cache
}

func NewCachedSigner(signer URLSigner, ttl time.Duration) *CachedSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSigner{
		signer: signer,
		ttl:    ttl,
		cache:  cache.New(ttl/2, ttl),
	}
}

// Sign 非存储引用原样返回
func (s *CachedSigner) Sign(ctx context.Context, ref string) (string, error) {
	if s == nil || s.signer == nil || ref == "" {
		return ref, nil
	}
	if v, ok := s.cache.Get(ref); ok {
		return v.(string), nil
	}
	signed, recognized, err := s.signer.Presign(ctx, ref, s.ttl)
	if err != nil {
		return "", err
	}
	if !recognized {
		return ref, nil
	}
	s.cache.Set(ref, signed, s.ttl/2)
	return signed, nil
}

func (s *CachedSigner) SignAll(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		signed, err := s.Sign(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, signed)
	}
	return out, nil
}
