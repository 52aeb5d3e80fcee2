package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourbook/internal/common"
)

func TestJSONErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	common.JSONError(rr, http.StatusUnprocessableEntity, "COUPON_REJECTED", "coupon rejected", map[string]string{"reason": "minimum"})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "COUPON_REJECTED", body.Error.Code)
	require.Equal(t, "coupon rejected", body.Error.Message)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := common.NewAppError("X", "x failed", http.StatusBadRequest, cause)
	require.ErrorIs(t, err, cause)
	require.True(t, common.IsAppError(err))
	require.Equal(t, "cause", err.Error())
}

func TestIdempotencyReplayAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := http.StatusUnprocessableEntity
	calls := 0
	handler := common.Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/drafts/abc/submit", nil)
		req.Header.Set("Idempotency-Key", "k-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusUnprocessableEntity, send())
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send())
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, 2, calls)
}
