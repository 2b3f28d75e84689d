package response

import (
	"errors"
	"fmt"
	"testing"

	"bank-node/pkg/apperror"

	"github.com/stretchr/testify/assert"
)

func TestOK(t *testing.T) {
	assert.Equal(t, "AD", OK("AD"))
	assert.Equal(t, "AB 40", OK("AB", "40"))
	assert.Equal(t, "AC 10001/10.1.2.3", OK("AC", "10001/10.1.2.3"))
}

func TestError_AppError(t *testing.T) {
	assert.Equal(t, "Error: Account not found.", Error(apperror.ErrAccountNotFound()))

	wrapped := fmt.Errorf("withdraw: %w", apperror.ErrInsufficientFunds())
	assert.Equal(t, "Error: Amount exceeds current balance.", Error(wrapped))
}

func TestError_HidesInternalDetail(t *testing.T) {
	line := Error(apperror.StoreFailure(errors.New("pq: password authentication failed")))
	assert.Equal(t, apperror.MsgStoreFailure, line)
	assert.NotContains(t, line, "password")

	assert.Equal(t, apperror.MsgStoreFailure, Error(errors.New("boom")))
}

func TestIsError(t *testing.T) {
	assert.True(t, IsError("Error: Account not found."))
	assert.True(t, IsError(apperror.MsgStoreFailure))
	assert.False(t, IsError("AB 0"))
}

func TestFrame(t *testing.T) {
	assert.Equal(t, []byte("AB 40\n"), Frame("AB 40"))
	assert.Equal(t, []byte("a b c\n"), Frame("a\nb\rc"), "embedded breaks are flattened")
}
