package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrDatabase, "query failed")
	assert.Equal(t, "[DATABASE_ERROR] query failed", err.Error())

	wrapped := Wrap(ErrDatabase, "query failed", stderrors.New("disk full"))
	assert.Equal(t, "[DATABASE_ERROR] query failed: disk full", wrapped.Error())

	formatted := Newf(ErrInvalid, "unknown operation %q", "UPSERT")
	assert.Equal(t, `[INVALID_INPUT] unknown operation "UPSERT"`, formatted.Error())
}

func TestIsWalksWrapChain(t *testing.T) {
	inner := New(ErrNetworkRetryable, "timeout")
	outer := Wrap(ErrSyncFailed, "push failed", inner)

	assert.True(t, Is(outer, ErrSyncFailed))
	assert.True(t, Is(outer, ErrNetworkRetryable))
	assert.False(t, Is(outer, ErrRemoteTerminal))
	assert.False(t, Is(nil, ErrSyncFailed))

	// Plain wrapping via %w is followed too.
	plain := fmt.Errorf("context: %w", inner)
	assert.True(t, Is(plain, ErrNetworkRetryable))
	assert.False(t, Is(stderrors.New("opaque"), ErrNetworkRetryable))
}

func TestCode(t *testing.T) {
	assert.Equal(t, ErrDatabase, Code(New(ErrDatabase, "x")))
	assert.Equal(t, ErrInternal, Code(stderrors.New("opaque")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(ErrMigration, "migrate", cause)
	assert.True(t, stderrors.Is(err, cause))
}
