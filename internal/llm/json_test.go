package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFirstJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]interface{}
	}{
		{
			name: "bare object",
			in:   `{"new_name": false, "id": 3}`,
			want: map[string]interface{}{"new_name": false, "id": float64(3)},
		},
		{
			name: "object wrapped in prose",
			in:   `Sure! Here is the answer: {"id": 3} hope it helps`,
			want: map[string]interface{}{"id": float64(3)},
		},
		{
			name: "fenced object",
			in:   "```json\n{\"company\": \"Banco BV\"}\n```",
			want: map[string]interface{}{"company": "Banco BV"},
		},
		{
			name: "multiline object",
			in:   "{\n  \"new_name\": true\n}",
			want: map[string]interface{}{"new_name": true},
		},
		{
			name: "no object",
			in:   "there is nothing here",
			want: nil,
		},
		{
			name: "unparseable braces",
			in:   "{not json}",
			want: nil,
		},
		{
			name: "empty object",
			in:   "{}",
			want: map[string]interface{}{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFirstJSON(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripFences(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, "{\"a\": 1}", StripFences(in))

	// Unfenced text passes through untouched.
	assert.Equal(t, "plain", StripFences("plain"))
}
