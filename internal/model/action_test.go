package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Execute(t *testing.T) {
	a := NewAction("send", func(ctx context.Context) (string, error) {
		return "message-id", nil
	})

	v, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "message-id", v)
	assert.Equal(t, "send", a.Verb)
}

func TestAction_ExecutePropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	a := NewAction("ban", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, wantErr
	})

	_, err := a.Execute(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestAction_HandleResult(t *testing.T) {
	a := NewAction("send", func(ctx context.Context) (string, error) {
		return "", nil
	})

	// A successful value of the expected type passes through.
	v, err := a.HandleResult("message-id")
	require.NoError(t, err)
	assert.Equal(t, "message-id", v)

	// An error value from a gathered execution is re-raised.
	wantErr := errors.New("gathered failure")
	_, err = a.HandleResult(wantErr)
	assert.ErrorIs(t, err, wantErr)

	// A value of the wrong shape is rejected, not silently accepted.
	_, err = a.HandleResult(42)
	assert.Error(t, err)
}
