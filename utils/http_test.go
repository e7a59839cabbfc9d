package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- APIError ---

func TestAPIError_Error(t *testing.T) {
	ae := &APIError{Code: 500, Message: "internal"}
	if ae.Error() != "internal" {
		t.Errorf("expected %q, got %q", "internal", ae.Error())
	}
}

// --- HTTPReachable ---

func TestHTTPReachable_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	if _, err := HTTPReachable(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPReachable_ClientErrorCountsAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := HTTPReachable(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Fatalf("404 should be reachable, got: %v", err)
	}
}

func TestHTTPReachable_ServerError_ReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := HTTPReachable(context.Background(), srv.Client(), srv.URL)
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if ae.Code != http.StatusServiceUnavailable {
		t.Errorf("expected code 503, got %d", ae.Code)
	}
	if !strings.Contains(ae.Message, "503") {
		t.Errorf("expected message to contain 503, got %q", ae.Message)
	}
}

func TestHTTPReachable_ConnectionError(t *testing.T) {
	hc := NewHTTPClient(200 * time.Millisecond)
	_, err := HTTPReachable(context.Background(), hc, "http://127.0.0.1:1/")
	if err == nil {
		t.Fatal("expected connection error")
	}
	var ae *APIError
	if errors.As(err, &ae) {
		t.Errorf("expected non-APIError, got APIError{%d}", ae.Code)
	}
}

func TestHTTPReachable_InvalidURL(t *testing.T) {
	if _, err := HTTPReachable(context.Background(), http.DefaultClient, "://bad"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestHTTPReachable_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := HTTPReachable(ctx, srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
