package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestClientIPPrefersFirstForwardedHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	req.RemoteAddr = "10.0.0.2:5555"
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestClientIPFallsBackToPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:443"
	require.Equal(t, "198.51.100.7", ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", ClientIP(req))
}

func TestClientIPLoopbackWhenUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ""
	req.Header.Set("X-Forwarded-For", " , ")
	require.Equal(t, LoopbackIP, ClientIP(req))
	require.Equal(t, LoopbackIP, ClientIP(nil))
}

func TestWriteErrorUsesAppErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewAppError("ORDER_CONFLICT", "order exists", http.StatusConflict, errors.New("boom")))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ORDER_CONFLICT", body.Error.Code)
	require.Equal(t, "order exists", body.Error.Message)
}

func TestWriteErrorFindsWrappedAppErrorDetails(t *testing.T) {
	cause := errors.New("amount must be positive")
	appErr := NewAppError("VALIDATION_ERROR", "invalid payment request", http.StatusBadRequest, cause).
		WithDetails(map[string]string{"amount": "gt"})
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("create: %w", appErr))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"amount":"gt"`)
	require.ErrorIs(t, appErr, cause)
	require.Equal(t, "VALIDATION_ERROR: amount must be positive", appErr.Error())
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("dsn leaked"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "dsn leaked")
}

func TestIdemRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	h := Idem{R: client, TTL: time.Minute, Prefix: "idem:create"}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, 1, calls)
	require.True(t, mr.Exists("idem:create:"+fingerprint("abc")))
}

func TestIdemPassesThroughWithoutHeader(t *testing.T) {
	calls := 0
	h := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}
	require.Equal(t, 2, calls)
}
