package echo

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

const (
	testSecret = mercury.Secret("bWVyY3VyeS13ZWJob29rLWtleQ==")
	testBody   = `{"id":"evt_1","resourceType":"transaction","operationType":"created","resourceId":"txn_1","mergePatch":{}}`
)

func newServer(cfg Config) *echo.Echo {
	e := echo.New()
	handler := func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		v, _ := GetVerification(c)
		return c.JSON(http.StatusOK, map[string]string{"body": string(body), "verification": v.Status.String()})
	}
	e.POST("/webhook", handler, Middleware(cfg))
	e.POST("/webhook/:integration", handler, Middleware(cfg))
	return e
}

func signed(path string, secret mercury.Secret) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(testBody))
	req.Header.Set(mercury.SignatureHeaderName, mercury.SignHeader(secret, "1700000000", []byte(testBody)))
	return req
}

func TestMiddleware_ValidSignature(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(Config{Secret: testSecret}).ServeHTTP(rec, signed("/webhook", testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verification":"verified"`)
	assert.Contains(t, rec.Body.String(), `evt_1`)
}

func TestMiddleware_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		req    func() *http.Request
		reason string
	}{
		{
			name:   "mismatch",
			req:    func() *http.Request { return signed("/webhook", "b3RoZXI=") },
			reason: mercury.ReasonSignatureMismatch,
		},
		{
			name: "missing header",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(testBody))
			},
			reason: mercury.ReasonMissingSignatureHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newServer(Config{Secret: testSecret}).ServeHTTP(rec, tt.req())

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"status":"error","message":"unauthorized: `+tt.reason+`"}`, rec.Body.String())
		})
	}
}

func TestMiddleware_NoSecret(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(testBody))
	newServer(Config{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verification":"skipped"`)
}

func TestMiddleware_TooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(Config{Secret: testSecret, MaxBodyBytes: 8}).ServeHTTP(rec, signed("/webhook", testSecret))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMiddleware_SecretFromParam(t *testing.T) {
	e := newServer(Config{GetSecret: SecretFromParam("integration", map[string]mercury.Secret{"acme": testSecret})})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, signed("/webhook/acme", testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, signed("/webhook/other", testSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
