package envelope

import (
	"bytes"
	"encoding/base64"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prproxy/internal/codec"
)

const testKID = "MDEyMzQ1Njc4OUFCQ0RFRg=="

// soapChallenge 构造一个内含 WRMHEADER 的许可证请求
func soapChallenge(kidElement string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body><AcquireLicense xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols">` +
		`<challenge><Challenge xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols/messages">` +
		`<LA xmlns="http://schemas.microsoft.com/DRM/2007/03/protocols" Id="SignedData"><Version>1</Version>` +
		`<ContentHeader><WRMHEADER xmlns="http://schemas.microsoft.com/DRM/2007/03/PlayReadyHeader" version="4.0.0.0">` +
		`<DATA><PROTECTINFO><KEYLEN>16</KEYLEN><ALGID>AESCTR</ALGID></PROTECTINFO>` + kidElement +
		`</DATA></WRMHEADER></ContentHeader></LA></Challenge></challenge></AcquireLicense></soap:Body></soap:Envelope>`
}

func TestExtractKeyID(t *testing.T) {
	tests := []struct {
		name  string
		inner string
	}{
		{"kid text", soapChallenge(`<KID>` + testKID + `</KID>`)},
		{"kid value attribute", soapChallenge(`<KIDS><KID ALGID="AESCTR" VALUE="` + testKID + `"></KID></KIDS>`)},
		{"malformed xml falls back to regex", `<broken><KID> ` + testKID + ` </KID>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Build(codec.EncodeBase64([]byte(tt.inner)))
			kid, err := ExtractKeyID(env)
			require.NoError(t, err)
			assert.Equal(t, testKID, kid)
		})
	}
}

func TestExtractKeyIDErrors(t *testing.T) {
	noChallenge := codec.EncodeUTF16LE(`<PlayReadyKeyMessage><LicenseAcquisition/></PlayReadyKeyMessage>`)
	_, err := ExtractKeyID(noChallenge)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	noKID := Build(codec.EncodeBase64([]byte(soapChallenge(""))))
	_, err = ExtractKeyID(noKID)
	assert.ErrorIs(t, err, ErrKeyIDNotFound)

	_, err = ExtractKeyID([]byte{0x3c})
	assert.ErrorIs(t, err, codec.ErrDecode)

	badPayload := codec.EncodeUTF16LE(`<Challenge encoding="base64encoded">***</Challenge>`)
	_, err = ExtractKeyID(badPayload)
	assert.ErrorIs(t, err, codec.ErrDecode)
}

func TestPlainChallengeContent(t *testing.T) {
	env := codec.EncodeUTF16LE(`<Challenge><KID>` + testKID + `</KID></Challenge>`)
	c, err := Parse(env)
	require.NoError(t, err)
	assert.Empty(t, c.Encoding)

	kid, err := ExtractKeyID(env)
	require.NoError(t, err)
	assert.Equal(t, testKID, kid)
}

func TestReinjectChallenge(t *testing.T) {
	env := Build(codec.EncodeBase64([]byte(soapChallenge(`<KID>` + testKID + `</KID>`))))
	replacement := codec.EncodeBase64([]byte(soapChallenge(`<KID>` + testKID + `</KID><CUSTOMATTRIBUTES/>`)))

	out, err := ReinjectChallenge(env, replacement)
	require.NoError(t, err)

	c, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, replacement, c.Content)
	assert.Equal(t, EncodingBase64, c.Encoding)

	// 信封其余部分保持不变
	before, _ := codec.DecodeUTF16LE(env)
	after, _ := codec.DecodeUTF16LE(out)
	oldContent, _ := Parse(env)
	assert.Equal(t, len(before)-len(oldContent.Content)+len(replacement), len(after))
	assert.Contains(t, after, `<HttpHeaders><HttpHeader><name>Content-Type</name>`)

	// 往返后 KID 不变
	kid, err := ExtractKeyID(out)
	require.NoError(t, err)
	assert.Equal(t, testKID, kid)
}

func TestReinjectKeepsSurroundingBytes(t *testing.T) {
	// 元素之外有一个未配对的代理项，宽松解码会把它变成 U+FFFD
	prefix := append(codec.EncodeUTF16LE(`<a x="`), 0x00, 0xd8)
	prefix = append(prefix, codec.EncodeUTF16LE(`"><Challenge encoding="base64encoded">`)...)
	suffix := append(codec.EncodeUTF16LE(`</Challenge><b>😀</b>`), 0x00, 0xdc)
	suffix = append(suffix, codec.EncodeUTF16LE(`</a>`)...)

	var env []byte
	env = append(env, prefix...)
	env = append(env, codec.EncodeUTF16LE("T0xE")...)
	env = append(env, suffix...)

	out, err := ReinjectChallenge(env, "TkVXLUNIQUxMRU5HRQ==")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, prefix))
	assert.True(t, bytes.HasSuffix(out, suffix))
	assert.Equal(t, len(prefix)+len(suffix)+2*len("TkVXLUNIQUxMRU5HRQ=="), len(out))

	c, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "TkVXLUNIQUxMRU5HRQ==", c.Content)
}

func TestKeyIDRoundTrip(t *testing.T) {
	kids := [][]byte{
		[]byte("0123456789ABCDEF"),
		{0xfb, 0xef, 0xff, 0xfb, 0xef, 0xff, 0xfb, 0xef, 0xff, 0xfb, 0xef, 0xff, 0xfb, 0xef, 0xff, 0xfe},
		{0x3e, 0x3f, 0xfc, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c},
		make([]byte, 16),
		bytes.Repeat([]byte{0xff}, 16),
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 32; i++ {
		b := make([]byte, 16)
		rng.Read(b)
		kids = append(kids, b)
	}

	sawSpecial := false
	for _, raw := range kids {
		kid := base64.StdEncoding.EncodeToString(raw)
		if bytes.ContainsAny([]byte(kid), "+/") {
			sawSpecial = true
		}

		env := Build(codec.EncodeBase64([]byte(soapChallenge(`<KID>` + kid + `</KID>`))))
		got, err := ExtractKeyID(env)
		require.NoError(t, err, kid)
		require.Equal(t, kid, got)

		_, err = codec.BuildPSSHFromKeyID(got)
		require.NoError(t, err, kid)

		replacement := codec.EncodeBase64([]byte(soapChallenge(`<KID>` + got + `</KID><CUSTOMATTRIBUTES/>`)))
		out, err := ReinjectChallenge(env, replacement)
		require.NoError(t, err, kid)
		again, err := ExtractKeyID(out)
		require.NoError(t, err, kid)
		assert.Equal(t, kid, again)
	}
	assert.True(t, sawSpecial, "key id set covers + and / in base64")
}

func TestReinjectOnlyFirstChallenge(t *testing.T) {
	env := codec.EncodeUTF16LE(`<a><Challenge>one</Challenge><Challenge>two</Challenge></a>`)
	out, err := ReinjectChallenge(env, "NEW$1")
	require.NoError(t, err)
	text, err := codec.DecodeUTF16LE(out)
	require.NoError(t, err)
	assert.Equal(t, `<a><Challenge>NEW$1</Challenge><Challenge>two</Challenge></a>`, text)

	_, err = ReinjectChallenge(codec.EncodeUTF16LE(`<a/>`), "x")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
