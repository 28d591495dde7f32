package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport 表示网络/连接层失败，未拿到可用的响应正文。
	ErrTransport = errors.New("transport error")
	// ErrDecode 表示响应正文不是可识别的图片。
	ErrDecode = errors.New("image decode failed")
)

// Kind 区分单个地址的失败原因，供日志与 HTTP 响应输出。
type Kind string

const (
	KindTransport Kind = "transport"
	KindDecode    Kind = "decode"
	KindCanceled  Kind = "canceled"
	KindInvalid   Kind = "invalid_identifier"
)

// FetchError 描述单个地址解析失败的原因。StatusCode 仅用于诊断，0 表示未收到响应。
type FetchError struct {
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (http %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap 同时暴露分类哨兵与底层原因，便于 errors.Is(err, ErrDecode) 等判断。
func (e *FetchError) Unwrap() []error {
	switch e.Kind {
	case KindTransport:
		return []error{ErrTransport, e.Err}
	case KindDecode:
		return []error{ErrDecode, e.Err}
	default:
		return []error{e.Err}
	}
}

// KindOf 返回 err 链上的失败分类；非 *FetchError 返回空字符串。
func KindOf(err error) Kind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}
