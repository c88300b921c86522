package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRabbitPublisher_DisabledWithoutURI(t *testing.T) {
	p, err := NewRabbitPublisher("")
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	err = p.Publish(context.Background(), Event{Type: ProgressSubmitted, UserID: "u1"})
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	Emit(context.Background(), r, Event{Type: ProgressSubmitted, UserID: "u1"})
	Emit(context.Background(), r, Event{Type: ProfileUpdated, UserID: "u2"})

	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, ProgressSubmitted, got[0].Type)
	assert.Equal(t, "u2", got[1].UserID)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, e Event) error {
	f.calls++
	return errors.New("broker gone")
}

func (f *failingPublisher) Close() error { return nil }

func TestEmit_SwallowsErrors(t *testing.T) {
	f := &failingPublisher{}
	assert.NotPanics(t, func() {
		Emit(context.Background(), f, Event{Type: ConversationLogged})
		Emit(context.Background(), nil, Event{Type: ConversationLogged})
	})
	assert.Equal(t, 1, f.calls)
}
