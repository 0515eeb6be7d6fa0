package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("create entity: %w", &Error{Kind: KindMissingProperty, Type: "Person", Field: "age"})

	assert.True(t, errors.Is(err, ErrMissingProperty))
	assert.False(t, errors.Is(err, ErrUnknownProperty))
	assert.Equal(t, KindMissingProperty, KindOf(err))
	assert.Equal(t, `create entity: type "Person": missing required property "age"`, err.Error())
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&Error{Kind: KindCommitFailed}))
	assert.True(t, Retryable(Storagef(errors.New("disk I/O"), "insert entity")))
	assert.False(t, Retryable(&Error{Kind: KindTypeMismatch}))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestStoragefKeepsTypedErrors(t *testing.T) {
	notFound := EntityNotFound("e1")
	assert.Same(t, notFound, Storagef(notFound, "get entity"))
	assert.Nil(t, Storagef(nil, "noop"))

	raw := errors.New("database is locked")
	wrapped := Storagef(raw, "insert %s", "entity")
	assert.ErrorIs(t, wrapped, ErrStorageUnavailable)
	assert.ErrorIs(t, wrapped, raw)
	assert.Equal(t, "storage unavailable: insert entity: database is locked", wrapped.Error())
}
