// Package codec 提供 Base64 / UTF-16LE / 十六进制之间的转换，以及 PlayReady PSSH 盒的构造与解析。
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// ErrDecode 输入不是合法的 Base64 / UTF-16LE / 十六进制
var ErrDecode = errors.New("decode error")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeBase64 标准 Base64 解码，忽略空白字符，兼容缺失的填充
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if len(s)%4 != 0 {
		if b2, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return b2, nil
		}
	}
	return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
}

// EncodeBase64 标准 Base64 编码
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// EncodeUTF16LE 将文本编码为 UTF-16LE 字节，每个码元两个字节
func EncodeUTF16LE(text string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(text))
	if err != nil {
		// 编码器对非法 UTF-8 使用替换字符，不会失败
		return nil
	}
	return b
}

// DecodeUTF16LE 将 UTF-16LE 字节解码为文本
func DecodeUTF16LE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("%w: utf-16le: odd length %d", ErrDecode, len(b))
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: utf-16le: %v", ErrDecode, err)
	}
	return string(out), nil
}

// EncodeHex 小写十六进制
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex 十六进制解码
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: hex: %v", ErrDecode, err)
	}
	return b, nil
}
