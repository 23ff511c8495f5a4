// Package provider 把每次调用只出一张图的生成接口适配为统一的创建/查询契约，
// 并归一化各家的状态词
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"CreativeStudio-server/models"
)

var (
	ErrLiveModeDisabled = errors.New("live generation is disabled")
	ErrPromptCount      = errors.New("exactly one prompt is required per task")
	ErrEmptyPrompt      = errors.New("prompt text is empty")
	ErrMissingTaskID    = errors.New("provider response missing task id")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// CreateInput 一次单图生成请求
type CreateInput struct {
	Prompts         []string
	ReferenceImages []string
	AspectRatio     string
	Resolution      string
	OutputFormat    string
	IdempotencyKey  string
}

type CreateResult struct {
	TaskID     string
	Raw        []byte
	HTTPStatus int
}

// TaskResult 归一化后的状态快照；只有 FAILED 时才带 ErrorMessage
type TaskResult struct {
	Status       models.FrameStatus
	Images       []string
	ErrorMessage string
	VendorStatus string
	Shape        string
	Raw          []byte
}

type Provider interface {
	CreateTask(ctx context.Context, in CreateInput) (*CreateResult, error)
	GetTask(ctx context.Context, taskID string) (*TaskResult, error)
}

// Registry 按 id 查找供应商，空 id 取默认供应商
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultID string
}

func NewRegistry(defaultID string) *Registry {
	return &Registry{providers: make(map[string]Provider), defaultID: defaultID}
}

func (r *Registry) Register(id string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
	if r.defaultID == "" {
		r.defaultID = id
	}
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.defaultID
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
