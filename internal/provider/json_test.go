package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"markdown fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose wrapped", `Here is the result: {"a":1}. Let me know.`, `{"a":1}`, false},
		{"nested braces", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`, false},
		{"no json", "Not JSON", "", true},
		{"only open brace", "{oops", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONBlock(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSONBlock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatJSON(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: `The verdict follows. {"confidence": 80} done`})

	var out struct {
		Confidence int `json:"confidence"`
	}
	raw, err := ChatJSON(context.Background(), mock, "system", "user", &out)
	require.NoError(t, err)
	assert.Equal(t, 80, out.Confidence)
	assert.Contains(t, raw, "verdict")
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, "system", mock.Calls[0].System)
}

func TestChatJSONParseFailure(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: "Not JSON"})

	var out map[string]any
	_, err := ChatJSON(context.Background(), mock, "s", "u", &out)
	assert.Error(t, err)
}
