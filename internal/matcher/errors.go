package matcher

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	// ErrModelUnavailable 嵌入模型不可用（构造期致命错误，不应重试）
	ErrModelUnavailable = errors.New("嵌入模型不可用")
	// ErrEmptyCorpus 候选人列表为空，无法构建索引
	ErrEmptyCorpus = errors.New("候选人列表为空")
	// ErrInvalidQuery 查询参数非法（空查询文本、k<=0或维度不匹配）
	ErrInvalidQuery = errors.New("查询参数非法")
	// ErrIndexNotBuilt 索引尚未构建，调用顺序错误
	ErrIndexNotBuilt = errors.New("索引尚未构建")
)

// MatchError 包含详细错误信息的自定义错误
type MatchError struct {
	Op      string // 出错的操作，如 build / search / embed
	BaseErr error
	Detail  string
}

func (e *MatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s): %s", e.BaseErr, e.Op, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewEmptyCorpusError(op string) error {
	return &MatchError{Op: op, BaseErr: ErrEmptyCorpus}
}

func NewInvalidQueryError(op, detail string) error {
	return &MatchError{Op: op, BaseErr: ErrInvalidQuery, Detail: detail}
}

func NewIndexNotBuiltError(op string) error {
	return &MatchError{Op: op, BaseErr: ErrIndexNotBuilt}
}

func NewModelUnavailableError(op, detail string) error {
	return &MatchError{Op: op, BaseErr: ErrModelUnavailable, Detail: detail}
}
