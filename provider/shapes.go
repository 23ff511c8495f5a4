package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// statusEnvelope 兼容目前见过的所有状态响应结构。逐字段宽松解码：
// 某个字段类型不符时只丢弃该字段，不影响其余字段和结果地址的提取。
type statusEnvelope struct {
	Code       int
	Msg        string
	Message    string
	Status     string
	State      string
	ResultURLs []string
	Data       *statusData
}

func (e *statusEnvelope) UnmarshalJSON(raw []byte) error {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	if code := looseInt(f["code"]); code != nil {
		e.Code = *code
	}
	e.Msg = looseString(f["msg"])
	e.Message = looseString(f["message"])
	e.Status = looseString(f["status"])
	e.State = looseString(f["state"])
	e.ResultURLs = looseStrings(f["resultUrls"])
	e.Data = decodeStatusData(f["data"])
	return nil
}

type statusData struct {
	TaskID       string
	State        string
	Status       string
	TaskStatus   string
	SuccessFlag  *int
	ResultJSON   json.RawMessage
	ResultURLs   []string
	Response     *resultPayload
	Images       []imageRef
	ImageURL     string
	FailMsg      string
	ErrorMessage string
}

// decodeStatusData data 为数组时取第一个对象元素
func decodeStatusData(raw json.RawMessage) *statusData {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		for _, item := range items {
			if d := decodeStatusData(item); d != nil {
				return d
			}
		}
		return nil
	}
	var f map[string]json.RawMessage
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil
	}
	d := &statusData{
		TaskID:       looseString(f["taskId"]),
		State:        looseString(f["state"]),
		Status:       looseString(f["status"]),
		TaskStatus:   looseString(f["taskStatus"]),
		SuccessFlag:  looseInt(f["successFlag"]),
		ResultJSON:   f["resultJson"],
		ResultURLs:   looseStrings(f["resultUrls"]),
		Images:       looseImages(f["images"]),
		ImageURL:     looseString(f["imageUrl"]),
		FailMsg:      looseString(f["failMsg"]),
		ErrorMessage: looseString(f["errorMessage"]),
	}
	if resp, ok := f["response"]; ok {
		var p resultPayload
		if json.Unmarshal(resp, &p) == nil {
			d.Response = &p
		}
	}
	return d
}

type resultPayload struct {
	ResultURLs []string
	ResultURL  string
	Images     []imageRef
}

func (p *resultPayload) UnmarshalJSON(raw []byte) error {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	p.ResultURLs = looseStrings(f["resultUrls"])
	p.ResultURL = looseString(f["resultUrl"])
	p.Images = looseImages(f["images"])
	return nil
}

type imageRef struct {
	URL string
}

func (p *resultPayload) urls() []string {
	if p == nil {
		return nil
	}
	if urls := compact(p.ResultURLs); len(urls) > 0 {
		return urls
	}
	if urls := imageURLs(p.Images); len(urls) > 0 {
		return urls
	}
	return compact([]string{p.ResultURL})
}

// looseInt 接受数字或数字字符串，其余类型视为缺失
func looseInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return nil
		}
		v = int(f)
	}
	return &v
}

// looseString 字符串原样返回，数字取字面量，其余类型视为缺失
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// looseStrings 接受字符串数组或单个字符串，跳过非字符串元素
func looseStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] != '[' {
		if s := looseString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// looseImages 元素可以是 {"url": ...} 或直接是地址字符串
func looseImages(raw json.RawMessage) []imageRef {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []imageRef
	for _, item := range items {
		var f map[string]json.RawMessage
		if json.Unmarshal(item, &f) == nil {
			out = append(out, imageRef{URL: looseString(f["url"])})
			continue
		}
		if s := looseString(item); s != "" {
			out = append(out, imageRef{URL: s})
		}
	}
	return out
}

type shapeExtractor struct {
	name    string
	extract func(*statusEnvelope) []string
}

// resultShapes 按顺序尝试，第一个取到地址的结构生效
var resultShapes = []shapeExtractor{
	{"data.resultJson", func(e *statusEnvelope) []string {
		if e.Data == nil {
			return nil
		}
		return decodeResultJSON(e.Data.ResultJSON).urls()
	}},
	{"data.response", func(e *statusEnvelope) []string {
		if e.Data == nil {
			return nil
		}
		return e.Data.Response.urls()
	}},
	{"data.resultUrls", func(e *statusEnvelope) []string {
		if e.Data == nil {
			return nil
		}
		return compact(e.Data.ResultURLs)
	}},
	{"data.images", func(e *statusEnvelope) []string {
		if e.Data == nil {
			return nil
		}
		return imageURLs(e.Data.Images)
	}},
	{"data.imageUrl", func(e *statusEnvelope) []string {
		if e.Data == nil {
			return nil
		}
		return compact([]string{e.Data.ImageURL})
	}},
	{"resultUrls", func(e *statusEnvelope) []string {
		return compact(e.ResultURLs)
	}},
}

func extractURLs(e *statusEnvelope) ([]string, string) {
	for _, shape := range resultShapes {
		if urls := shape.extract(e); len(urls) > 0 {
			return urls, shape.name
		}
	}
	return nil, ""
}

// vendorStatus 按优先级返回第一个非空的状态词
func vendorStatus(e *statusEnvelope) string {
	var candidates []string
	if e.Data != nil {
		candidates = append(candidates, e.Data.State, e.Data.Status, e.Data.TaskStatus)
	}
	candidates = append(candidates, e.State, e.Status)
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

func failureMessage(e *statusEnvelope) string {
	var candidates []string
	if e.Data != nil {
		candidates = append(candidates, e.Data.FailMsg, e.Data.ErrorMessage)
	}
	candidates = append(candidates, e.Message, e.Msg)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && !isSuccessMessage(c) {
			return c
		}
	}
	return ""
}

// decodeResultJSON resultJson 既可能是对象，也可能是装着 JSON 的字符串
func decodeResultJSON(raw json.RawMessage) *resultPayload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil || strings.TrimSpace(inner) == "" {
			return nil
		}
		raw = []byte(inner)
	}
	var p resultPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}

func imageURLs(images []imageRef) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.URL)
	}
	return compact(out)
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
