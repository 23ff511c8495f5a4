package framegen

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout 轮询超出最大运行时间；结果未知，不等同于失败
	ErrTimeout = errors.New("frame generation poll exceeded max runtime")
	// ErrInvalidStart 启动请求本身不合法（没有 prompt、prompt 为空、帧类型未知）
	ErrInvalidStart = errors.New("invalid frame generation request")
)

// StructuralError 数据完整性错误，不应自动重试
type StructuralError struct {
	JobID  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("job %s is malformed: %s", e.JobID, e.Reason)
}

// ProviderCreateError 创建任务失败，整批启动作废
type ProviderCreateError struct {
	FrameIndex int
	FrameKey   string
	Err        error
}

func (e *ProviderCreateError) Error() string {
	return fmt.Sprintf("create task for frame %d (%s): %v", e.FrameIndex, e.FrameKey, e.Err)
}

func (e *ProviderCreateError) Unwrap() error { return e.Err }

// ProviderPollError 单个任务轮询失败；只记录在该任务上，不中断其他任务
type ProviderPollError struct {
	TaskID string
	Err    error
}

func (e *ProviderPollError) Error() string {
	return fmt.Sprintf("poll task %s: %v", e.TaskID, e.Err)
}

func (e *ProviderPollError) Unwrap() error { return e.Err }

// AggregateFailure 任一任务失败导致整个 job 失败
type AggregateFailure struct {
	JobID   string
	Message string
}

func (e *AggregateFailure) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// PersistenceError 要求持久化时上传失败
type PersistenceError struct {
	TaskID string
	Key    string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist frame of task %s to %s: %v", e.TaskID, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
