package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskError_KindThroughWrapping(t *testing.T) {
	cause := errors.New("no such file")
	err := fmt.Errorf("init task: %w", NewTaskError(KindResourceUnavailable, cause, "cannot copy %s", "p.xml"))

	assert.Equal(t, KindResourceUnavailable, KindOf(err))
	assert.True(t, IsKind(err, KindResourceUnavailable))
	assert.False(t, IsKind(err, KindCancelled))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cannot copy p.xml")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindCancelled))
}

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewDescriptorNotFoundError("abc"))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "lookup: descriptor abc not found", err.Error())

	custom := &NotFoundError{ResourceType: "task", ResourceName: "t", Message: "gone"}
	assert.Equal(t, "gone", custom.Error())
	assert.False(t, IsNotFound(errors.New("other")))
}
