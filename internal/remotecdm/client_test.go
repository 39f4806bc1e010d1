package remotecdm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"prproxy/pkg/model"
)

type recorded struct {
	method  string
	path    string
	secret  string
	forward string
	body    string
}

// fakeServer 模拟远端 CDM 服务
func fakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method:  r.Method,
			path:    r.URL.Path,
			secret:  r.Header.Get(HeaderSecret),
			forward: r.Header.Get(HeaderForwardedFor),
			body:    string(b),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(host string) Config {
	return Config{SecurityLevel: 3000, Host: host, Secret: "s3cret", DeviceName: "sl3000"}
}

func TestClientLifecycle(t *testing.T) {
	srv, calls := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/open"):
			io.WriteString(w, `{"message":"Success","responseData":{"session_id":"abc123"}}`)
		case strings.HasSuffix(r.URL.Path, "/get_challenge"):
			io.WriteString(w, `{"responseData":{"challenge_b64":"Q0hBTExFTkdF"}}`)
		case strings.HasSuffix(r.URL.Path, "/get_keys"):
			io.WriteString(w, `{"responseData":{"keys":[{"key_id":"00112233445566778899aabbccddeeff","key":"ffeeddccbbaa99887766554433221100","type":"CONTENT"}]}}`)
		case strings.Contains(r.URL.Path, "/close/"):
			io.WriteString(w, `{"message":"closed"}`)
		default:
			http.NotFound(w, r)
		}
	})

	c := New(testConfig(srv.URL))
	ctx := context.Background()

	id, err := c.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	challenge, err := c.GetLicenseChallenge(ctx, id, "UFNTSA==")
	require.NoError(t, err)
	assert.Equal(t, "Q0hBTExFTkdF", challenge)

	keys, err := c.GetKeys(ctx, id, "TElDRU5TRQ==")
	require.NoError(t, err)
	assert.Equal(t, []model.KeyResult{{
		KeyID: "00112233445566778899aabbccddeeff",
		Key:   "ffeeddccbbaa99887766554433221100",
	}}, keys)

	require.NoError(t, c.Close(ctx, id))

	require.Len(t, *calls, 4)
	got := *calls
	assert.Equal(t, "GET", got[0].method)
	assert.Equal(t, "/api/playready/sl3000/open", got[0].path)
	assert.Equal(t, "POST", got[1].method)
	assert.Equal(t, "/api/playready/sl3000/get_challenge", got[1].path)
	assert.Equal(t, "abc123", gjson.Get(got[1].body, "session_id").String())
	assert.Equal(t, "UFNTSA==", gjson.Get(got[1].body, "pssh").String())
	assert.Equal(t, "TElDRU5TRQ==", gjson.Get(got[2].body, "license_b64").String())
	assert.Equal(t, "/api/playready/sl3000/close/abc123", got[3].path)
	for _, call := range got {
		assert.Equal(t, "s3cret", call.secret)
		assert.Empty(t, call.forward)
	}
}

func TestClientDataEnvelope(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"session_id":"from-data"}}`)
	})
	id, err := New(testConfig(srv.URL)).Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-data", id)
}

func TestClientEmptyKeys(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"responseData":{"keys":[]}}`)
	})
	keys, err := New(testConfig(srv.URL)).GetKeys(context.Background(), "id", "lic")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestClientRemoteError(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Unauthorized"}`)
	})
	_, err := New(testConfig(srv.URL)).Open(context.Background())

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Contains(t, re.Body, "Unauthorized")
}

func TestClientMissingSessionID(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"responseData":{}}`)
	})
	_, err := New(testConfig(srv.URL)).Open(context.Background())

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "missing session_id", re.Reason)
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := New(testConfig(host), WithTimeout(time.Second)).Open(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "open", te.Op)
}

func TestClientProxyRewrite(t *testing.T) {
	var gotURI, gotForward string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		gotForward = r.Header.Get(HeaderForwardedFor)
		io.WriteString(w, `{"responseData":{"session_id":"via-proxy"}}`)
	}))
	defer proxy.Close()

	cfg := testConfig("https://cdm.example.com").WithProxy(proxy.URL + "/relay/")
	id, err := New(cfg).Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via-proxy", id)
	assert.Equal(t, "/relay/https://cdm.example.com/api/playready/sl3000/open", gotURI)
	assert.Equal(t, proxy.URL+"/relay/", gotForward)
}

func TestClientCloseFailure(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := New(testConfig(srv.URL)).Close(context.Background(), "gone")
	assert.Error(t, err)
}
