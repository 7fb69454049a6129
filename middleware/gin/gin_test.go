package gin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gongin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

const (
	testSecret = mercury.Secret("bWVyY3VyeS13ZWJob29rLWtleQ==")
	testBody   = `{"id":"evt_1","resourceType":"transaction","operationType":"created","resourceId":"txn_1","mergePatch":{}}`
)

func init() {
	gongin.SetMode(gongin.TestMode)
}

func newRouter(cfg Config) *gongin.Engine {
	r := gongin.New()
	handler := func(c *gongin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		v, _ := GetVerification(c)
		c.JSON(http.StatusOK, gongin.H{"body": string(body), "verification": v.Status.String()})
	}
	r.POST("/webhook", Middleware(cfg), handler)
	r.POST("/webhook/:integration", Middleware(cfg), handler)
	return r
}

func signed(path string, secret mercury.Secret) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(testBody))
	req.Header.Set(mercury.SignatureHeaderName, mercury.SignHeader(secret, "1700000000", []byte(testBody)))
	return req
}

func TestMiddleware_ValidSignature(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(Config{Secret: testSecret}).ServeHTTP(rec, signed("/webhook", testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, testBody, out["body"])
	assert.Equal(t, "verified", out["verification"])
}

func TestMiddleware_Mismatch(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(Config{Secret: testSecret}).ServeHTTP(rec, signed("/webhook", "b3RoZXI="))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"unauthorized: signature_mismatch"}`, rec.Body.String())
}

func TestMiddleware_MissingHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(testBody))
	newRouter(Config{Secret: testSecret}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), mercury.ReasonMissingSignatureHeader)
}

func TestMiddleware_TooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(Config{Secret: testSecret, MaxBodyBytes: 10}).ServeHTTP(rec, signed("/webhook", testSecret))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMiddleware_SecretFromParam(t *testing.T) {
	router := newRouter(Config{GetSecret: SecretFromParam("integration", map[string]mercury.Secret{"acme": testSecret})})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signed("/webhook/acme", testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signed("/webhook/unknown", testSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_OnRejected(t *testing.T) {
	var reason string
	router := newRouter(Config{
		Secret: testSecret,
		OnRejected: func(c *gongin.Context, v mercury.Verification) {
			reason = v.Reason
			c.Status(http.StatusForbidden)
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signed("/webhook", "b3RoZXI="))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, mercury.ReasonSignatureMismatch, reason)
}
