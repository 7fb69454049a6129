package internal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"evt_1"}`))
	body, err := ReadBody(httptest.NewRecorder(), req, 1024)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != `{"id":"evt_1"}` {
		t.Errorf("body = %q", body)
	}
}

func TestReadBody_EmptyIsNotAnError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	body, err := ReadBody(httptest.NewRecorder(), req, 1024)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestReadBody_TooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 2048)))
	_, err := ReadBody(httptest.NewRecorder(), req, 1024)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteError(w, http.StatusBadRequest, "bad"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"error","message":"bad"}` {
		t.Errorf("body = %s", got)
	}
}
