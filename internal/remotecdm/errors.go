package remotecdm

import (
	"fmt"
)

// RemoteError 远端服务返回失败或响应缺少必要字段
type RemoteError struct {
	Op     string
	Status int
	Body   string
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("remote cdm %s: %s (status %d)", e.Op, e.Reason, e.Status)
	}
	return fmt.Sprintf("remote cdm %s: status %d: %s", e.Op, e.Status, e.Body)
}

// TransportError 网络层失败（DNS、连接拒绝、超时），不做重试
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote cdm %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
