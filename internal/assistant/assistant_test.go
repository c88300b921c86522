package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanned_RepliesFromSuggestions(t *testing.T) {
	c := NewCanned(rand.New(rand.NewSource(7)))

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		answer, err := c.Reply(context.Background(), Query{Message: "why is this slow?"})
		require.NoError(t, err)
		assert.Contains(t, Suggestions, answer)
		seen[answer] = true
	}
	assert.Len(t, seen, len(Suggestions))
}

func TestCanned_Deterministic(t *testing.T) {
	a := NewCanned(rand.New(rand.NewSource(3)))
	b := NewCanned(rand.New(rand.NewSource(3)))

	for i := 0; i < 10; i++ {
		x, _ := a.Reply(context.Background(), Query{})
		y, _ := b.Reply(context.Background(), Query{})
		assert.Equal(t, x, y)
	}
}

type stubAssistant struct {
	answer string
	err    error
	calls  int
}

func (s *stubAssistant) Reply(ctx context.Context, q Query) (string, error) {
	s.calls++
	return s.answer, s.err
}

func TestFallback(t *testing.T) {
	t.Run("primary answers", func(t *testing.T) {
		primary := &stubAssistant{answer: "check the loop bounds"}
		secondary := &stubAssistant{answer: "canned"}
		f := &Fallback{Primary: primary, Secondary: secondary}

		answer, err := f.Reply(context.Background(), Query{Message: "help"})
		require.NoError(t, err)
		assert.Equal(t, "check the loop bounds", answer)
		assert.Zero(t, secondary.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &stubAssistant{err: errors.New("provider down")}
		secondary := &stubAssistant{answer: "canned"}
		f := &Fallback{Primary: primary, Secondary: secondary}

		answer, err := f.Reply(context.Background(), Query{Message: "help"})
		require.NoError(t, err)
		assert.Equal(t, "canned", answer)
	})

	t.Run("blank answer", func(t *testing.T) {
		primary := &stubAssistant{answer: "  "}
		secondary := &stubAssistant{answer: "canned"}
		f := &Fallback{Primary: primary, Secondary: secondary}

		answer, err := f.Reply(context.Background(), Query{Message: "help"})
		require.NoError(t, err)
		assert.Equal(t, "canned", answer)
	})
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t, "help", userPrompt(Query{Message: "help", Code: "  \n"}))

	got := userPrompt(Query{Message: "help", Code: "x = 1"})
	assert.True(t, strings.HasPrefix(got, "help\n\nMy code:\n"))
	assert.Contains(t, got, "x = 1")
}

func TestAnthropic_Reply(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "Handle the empty input case."},
			},
			"model":       DefaultAnthropicModel,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(server.Close)

	a, err := NewAnthropic("test-key", "", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	answer, err := a.Reply(context.Background(), Query{Message: "what is wrong?", Code: "return nums[0]"})
	require.NoError(t, err)
	assert.Equal(t, "Handle the empty input case.", answer)
	assert.Equal(t, DefaultAnthropicModel, body["model"])
	assert.NotNil(t, body["system"])
}

func TestAnthropic_Errors(t *testing.T) {
	_, err := NewAnthropic("", "")
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "bad"},
		})
	}))
	t.Cleanup(server.Close)

	a, err := NewAnthropic("test-key", "", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = a.Reply(context.Background(), Query{Message: "help"})
	assert.Error(t, err)

	_, err = a.Reply(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestOpenAI_Reply(t *testing.T) {
	var req map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   DefaultOpenAIModel,
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "Try a hash map."},
					"finish_reason": "stop",
				},
			},
		})
	}))
	t.Cleanup(server.Close)

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	answer, err := o.Reply(context.Background(), Query{Message: "too slow"})
	require.NoError(t, err)
	assert.Equal(t, "Try a hash map.", answer)

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAI_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}))
	t.Cleanup(server.Close)

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = o.Reply(context.Background(), Query{Message: "help"})
	assert.Error(t, err)
}

func TestWhisper_Transcribe(t *testing.T) {
	var gotPath string
	var gotAudio string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, _, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(file)
			gotAudio = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"text": "why does my loop never end"})
	}))
	t.Cleanup(server.Close)

	w, err := NewWhisper(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	text, err := w.Transcribe(context.Background(), strings.NewReader("RIFF-audio"), "")
	require.NoError(t, err)
	assert.Equal(t, "why does my loop never end", text)
	assert.Equal(t, "/v1/audio/transcriptions", gotPath)
	assert.Equal(t, "RIFF-audio", gotAudio)
}
