// Package envelope 处理 EME 层的 PlayReady 密钥消息信封（UTF-16LE 文本）。
//
// 信封结构对本系统不透明，只对 Challenge 元素做范围受限的文本替换，
// 其余内容原样保留。
package envelope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/beevik/etree"

	"prproxy/internal/codec"
)

// EncodingBase64 Challenge 元素 encoding 属性表示内容为 Base64
const EncodingBase64 = "base64encoded"

var (
	// ErrChallengeNotFound 信封中没有 Challenge 元素
	ErrChallengeNotFound = errors.New("challenge element not found")
	// ErrKeyIDNotFound Challenge 存在但其中找不到 KID
	ErrKeyIDNotFound = errors.New("kid not found in challenge")
)

var (
	challengeRe = regexp.MustCompile(`(?is)(<Challenge\b[^>]*>)(.*?)(</Challenge>)`)
	encodingRe  = regexp.MustCompile(`(?i)\bencoding\s*=\s*"([^"]+)"`)
	kidTextRe   = regexp.MustCompile(`(?i)<KID>([^<]+)</KID>`)
	kidValueRe  = regexp.MustCompile(`(?i)<KID\b[^>]*\bVALUE\s*=\s*"([^"]+)"`)
)

// Challenge 信封中定位到的 Challenge 元素
type Challenge struct {
	Encoding string
	Content  string // 元素原始文本
	Inner    string // 按 encoding 解码后的载荷
}

// Parse 解码信封并定位 Challenge 元素
func Parse(envelope []byte) (*Challenge, error) {
	text, err := codec.DecodeUTF16LE(envelope)
	if err != nil {
		return nil, err
	}
	m := challengeRe.FindStringSubmatch(text)
	if m == nil {
		return nil, ErrChallengeNotFound
	}

	c := &Challenge{Content: strings.TrimSpace(m[2])}
	if em := encodingRe.FindStringSubmatch(m[1]); em != nil {
		c.Encoding = em[1]
	}

	c.Inner = c.Content
	if strings.EqualFold(c.Encoding, EncodingBase64) {
		raw, err := codec.DecodeBase64(c.Content)
		if err != nil {
			return nil, fmt.Errorf("challenge payload: %w", err)
		}
		c.Inner = string(raw)
	}
	return c, nil
}

// ExtractKeyID 返回信封 Challenge 中第一个 KID（Base64）
func ExtractKeyID(envelope []byte) (string, error) {
	c, err := Parse(envelope)
	if err != nil {
		return "", err
	}
	if kid := findKID(c.Inner); kid != "" {
		return kid, nil
	}
	return "", ErrKeyIDNotFound
}

// findKID 先按 XML 查找，解析失败时退回正则
func findKID(inner string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(inner); err == nil && doc.Root() != nil {
		for _, el := range doc.FindElements("//KID") {
			if v := strings.TrimSpace(el.Text()); v != "" {
				return v
			}
			// PlayReady 4.2+ 头部：<KID ALGID="AESCTR" VALUE="..."/>
			if v := strings.TrimSpace(el.SelectAttrValue("VALUE", "")); v != "" {
				return v
			}
		}
		return ""
	}
	if m := kidTextRe.FindStringSubmatch(inner); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := kidValueRe.FindStringSubmatch(inner); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ReinjectChallenge 用新的 challenge 替换第一个 Challenge 元素的文本。
// 替换在字节层面完成，元素之外的字节保持原样。
func ReinjectChallenge(envelope []byte, challengeBase64 string) ([]byte, error) {
	text, err := codec.DecodeUTF16LE(envelope)
	if err != nil {
		return nil, err
	}
	loc := challengeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, ErrChallengeNotFound
	}
	// loc[4]:loc[5] 为元素内容，换算为 UTF-16 码元偏移
	start := 2 * utf16Units(text[:loc[4]])
	end := start + 2*utf16Units(text[loc[4]:loc[5]])
	if end > len(envelope) {
		return nil, fmt.Errorf("%w: challenge span out of range", codec.ErrDecode)
	}
	if got, err := codec.DecodeUTF16LE(envelope[start:end]); err != nil || got != text[loc[4]:loc[5]] {
		return nil, fmt.Errorf("%w: challenge span does not match envelope bytes", codec.ErrDecode)
	}

	content := codec.EncodeUTF16LE(challengeBase64)
	out := make([]byte, 0, len(envelope)-(end-start)+len(content))
	out = append(out, envelope[:start]...)
	out = append(out, content...)
	out = append(out, envelope[end:]...)
	return out, nil
}

// utf16Units 文本编码为 UTF-16 所需的码元数
func utf16Units(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// Build 构造一个 EME 密钥消息信封，challenge 为 Base64 编码的 SOAP 请求
func Build(challengeBase64 string) []byte {
	text := `<PlayReadyKeyMessage type="LicenseAcquisition"><LicenseAcquisition Version="1">` +
		`<Challenge encoding="` + EncodingBase64 + `">` + challengeBase64 + `</Challenge>` +
		`<HttpHeaders><HttpHeader><name>Content-Type</name><value>text/xml; charset=utf-8</value></HttpHeader>` +
		`<HttpHeader><name>SOAPAction</name><value>"http://schemas.microsoft.com/DRM/2007/03/protocols/AcquireLicense"</value></HttpHeader>` +
		`</HttpHeaders></LicenseAcquisition></PlayReadyKeyMessage>`
	return codec.EncodeUTF16LE(text)
}
