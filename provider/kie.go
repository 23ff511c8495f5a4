package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"

	"go.uber.org/zap"
	"resty.dev/v3"
)

type KieOptions struct {
	ID         string
	BaseURL    string
	APIKey     string
	Model      string
	CreatePath string
	StatusPath string
	LiveMode   bool
	Timeout    time.Duration
	Signer     *CachedSigner
	Logger     *zap.Logger
}

// KieClient 对接 KIE 风格的任务接口：createTask 返回任务 id，
// recordInfo 返回状态和字符串形式的 resultJson
type KieClient struct {
	opts   KieOptions
	client *resty.Client
	log    *zap.Logger
}

func NewKieClient(opts KieOptions) *KieClient {
	if opts.CreatePath == "" {
		opts.CreatePath = "/api/v1/jobs/createTask"
	}
	if opts.StatusPath == "" {
		opts.StatusPath = "/api/v1/jobs/recordInfo"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetTimeout(opts.Timeout)
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &KieClient{
		opts:   opts,
		client: client,
		log:    logger.OrNop(opts.Logger).With(zap.String("provider", opts.ID)),
	}
}

func (c *KieClient) Close() {
	c.client.Close()
}

type kieCreateRequest struct {
	Model string         `json:"model,omitempty"`
	Input kieCreateInput `json:"input"`
}

type kieCreateInput struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
	OutputFormat string   `json:"output_format,omitempty"`
}

type kieCreateResponse struct {
	Code   int
	Msg    string
	TaskID string
}

func (r *kieCreateResponse) UnmarshalJSON(raw []byte) error {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	if code := looseInt(f["code"]); code != nil {
		r.Code = *code
	}
	r.Msg = looseString(f["msg"])
	if d := decodeStatusData(f["data"]); d != nil {
		r.TaskID = d.TaskID
	}
	for _, k := range []string{"taskId", "id"} {
		if r.TaskID == "" {
			r.TaskID = looseString(f[k])
		}
	}
	return nil
}

func (c *KieClient) CreateTask(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if !c.opts.LiveMode {
		return nil, ErrLiveModeDisabled
	}
	if len(in.Prompts) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrPromptCount, len(in.Prompts))
	}
	prompt := strings.TrimSpace(in.Prompts[0])
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	images, err := c.opts.Signer.SignAll(ctx, in.ReferenceImages)
	if err != nil {
		return nil, fmt.Errorf("sign reference images: %w", err)
	}

	body := kieCreateRequest{
		Model: c.opts.Model,
		Input: kieCreateInput{
			Prompt:       prompt,
			ImageURLs:    images,
			AspectRatio:  in.AspectRatio,
			Resolution:   in.Resolution,
			OutputFormat: in.OutputFormat,
		},
	}
	req := c.client.R().SetContext(ctx).SetBody(body)
	if in.IdempotencyKey != "" {
		req.SetHeader("Idempotency-Key", in.IdempotencyKey)
	}
	resp, err := req.Post(c.opts.CreatePath)
	if err != nil {
		return nil, fmt.Errorf("create task request: %w", err)
	}
	raw := []byte(resp.String())
	result := &CreateResult{Raw: raw, HTTPStatus: resp.StatusCode()}
	if resp.StatusCode() >= http.StatusBadRequest {
		return result, fmt.Errorf("create task: http %d: %s", resp.StatusCode(), truncate(resp.String(), 500))
	}

	var parsed kieCreateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return result, fmt.Errorf("decode create response: %w", err)
	}
	if parsed.Code != 0 && parsed.Code != http.StatusOK {
		return result, fmt.Errorf("create task: code %d: %s", parsed.Code, parsed.Msg)
	}
	result.TaskID = strings.TrimSpace(parsed.TaskID)
	if result.TaskID == "" {
		return result, ErrMissingTaskID
	}
	c.log.Debug("provider task created", zap.String("task_id", result.TaskID), zap.String("idempotency_key", in.IdempotencyKey))
	return result, nil
}

func (c *KieClient) GetTask(ctx context.Context, taskID string) (*TaskResult, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("taskId", taskID).
		Get(c.opts.StatusPath)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("get task %s: http %d: %s", taskID, resp.StatusCode(), truncate(resp.String(), 500))
	}
	raw := []byte(resp.String())
	result, err := ParseTaskResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	c.log.Debug("provider task polled",
		zap.String("task_id", taskID),
		zap.String("vendor_status", result.VendorStatus),
		zap.String("status", string(result.Status)),
		zap.String("shape", result.Shape),
	)
	return result, nil
}

// ParseTaskResponse 把原始状态响应归一化
func ParseTaskResponse(raw []byte) (*TaskResult, error) {
	var env statusEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK && env.Data == nil {
		msg := failureMessage(&env)
		if msg == "" {
			msg = fmt.Sprintf("provider returned code %d", env.Code)
		}
		return nil, fmt.Errorf("status query rejected: %s", msg)
	}

	urls, shape := extractURLs(&env)
	vendor := vendorStatus(&env)
	var flag *int
	if env.Data != nil {
		flag = env.Data.SuccessFlag
	}
	result := &TaskResult{
		Status:       resolveStatus(vendor, flag, len(urls) > 0),
		VendorStatus: vendor,
		Raw:          raw,
	}
	if result.Status == models.FrameStatusFailed {
		result.ErrorMessage = failureMessage(&env)
		if result.ErrorMessage == "" {
			result.ErrorMessage = "provider reported failure"
		}
		return result, nil
	}
	result.Images = urls
	result.Shape = shape
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Provider = (*KieClient)(nil)
