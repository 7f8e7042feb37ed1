package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPCheckerSuccessOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL)
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
}

func TestHTTPCheckerFailureOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL)
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestHTTPCheckerFailureOnUnreachable(t *testing.T) {
	checker := NewHTTPChecker("http://127.0.0.1:1")
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestExecCheckerSuccessOnExitZero(t *testing.T) {
	checker := NewExecChecker([]string{"true"})
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
}

func TestExecCheckerFailureOnNonZeroExit(t *testing.T) {
	checker := NewExecChecker([]string{"false"})
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestExecCheckerNoCommandConfigured(t *testing.T) {
	checker := &ExecChecker{}
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Equal(t, "no command specified", result.Message)
}
