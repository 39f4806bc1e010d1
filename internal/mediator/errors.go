package mediator

import (
	"errors"

	"prproxy/internal/codec"
	"prproxy/internal/envelope"
	"prproxy/internal/remotecdm"
)

var (
	// ErrDisabled 调解功能已关闭
	ErrDisabled = errors.New("mediation disabled")
	// ErrStructuredPayload 载荷是普通结构化数据，不是需要调解的 challenge 信封
	ErrStructuredPayload = errors.New("structured payload, not a challenge envelope")
	// ErrEmptyBody 空载荷
	ErrEmptyBody = errors.New("empty body")
	// ErrNoPage 消息缺少页面标识
	ErrNoPage = errors.New("missing page identity")
	// ErrNoSessionForPage 页面没有先前生成的 challenge 会话
	ErrNoSessionForPage = errors.New("no session for page")
	// ErrEmptyKeyResult 远端返回零个密钥
	ErrEmptyKeyResult = errors.New("empty key result")
)

// 诊断日志代码
const (
	CodeBypass       = "BYPASS"
	CodeNoChallenge  = "NO_CHALLENGE_IN_ENVELOPE"
	CodeNoKID        = "NO_KID_IN_CHALLENGE"
	CodeNoPSSH       = "NO_PSSH_DATA_IN_CHALLENGE"
	CodeDecode       = "DECODE_ERROR"
	CodeNoRemote     = "NO_REMOTE_CDM"
	CodeConfigParse  = "REMOTE_CDM_CONFIG_PARSE"
	CodeRemote       = "REMOTE_ERROR"
	CodeTransport    = "TRANSPORT_ERROR"
	CodeNoPage       = "NO_PAGE"
	CodeNoSession    = "NO_SESSION_FOR_PAGE"
	CodeEmptyKeys    = "NO_KEYS"
	CodeUnclassified = "ERROR"
)

// Code 将错误映射为诊断代码
func Code(err error) string {
	var re *remotecdm.RemoteError
	var te *remotecdm.TransportError
	switch {
	case errors.Is(err, ErrDisabled), errors.Is(err, ErrStructuredPayload), errors.Is(err, ErrEmptyBody):
		return CodeBypass
	case errors.Is(err, envelope.ErrChallengeNotFound):
		return CodeNoChallenge
	case errors.Is(err, envelope.ErrKeyIDNotFound):
		return CodeNoKID
	case errors.Is(err, codec.ErrInvalidKeyID):
		return CodeNoPSSH
	case errors.Is(err, codec.ErrDecode):
		return CodeDecode
	case errors.Is(err, remotecdm.ErrNoRemoteConfigured):
		return CodeNoRemote
	case errors.Is(err, remotecdm.ErrConfigParse):
		return CodeConfigParse
	case errors.As(err, &re):
		return CodeRemote
	case errors.As(err, &te):
		return CodeTransport
	case errors.Is(err, ErrNoPage):
		return CodeNoPage
	case errors.Is(err, ErrNoSessionForPage):
		return CodeNoSession
	case errors.Is(err, ErrEmptyKeyResult):
		return CodeEmptyKeys
	default:
		return CodeUnclassified
	}
}
