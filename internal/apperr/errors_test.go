package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("accept request: %w", AlreadyHandled())

	assert.Equal(t, KindAlreadyHandled, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("load chat: %w", NotFound("chat"))

	assert.True(t, errors.Is(err, NotFound("request")))
	assert.False(t, errors.Is(err, Forbidden("nope")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindSelfRequest:      http.StatusBadRequest,
		KindValidation:       http.StatusBadRequest,
		KindAlreadyConnected: http.StatusConflict,
		KindDuplicatePending: http.StatusConflict,
		KindAlreadyHandled:   http.StatusConflict,
		KindNotFound:         http.StatusNotFound,
		KindForbidden:        http.StatusForbidden,
		KindStoreUnavailable: http.StatusServiceUnavailable,
		KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}

func TestRetryableOnlyForStoreUnavailable(t *testing.T) {
	cause := errors.New("connection reset")

	assert.True(t, Retryable(StoreUnavailable(cause)))
	assert.False(t, Retryable(DuplicatePending()))
	assert.ErrorIs(t, StoreUnavailable(cause), cause)
}
