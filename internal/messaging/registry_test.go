package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"scholarai.websearch", "scholarai"},
		{"websearch", "websearch"},
		{"", DefaultMessageType},
		{".websearch", DefaultMessageType},
		{"extraction.request.v2", "extraction"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageType(tt.key))
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	named := HandlerFunc(func(context.Context, Message) error { return nil })
	fallback := HandlerFunc(func(context.Context, Message) error { return nil })

	r := NewRegistry()
	assert.Nil(t, r.Lookup("scholarai"))

	r.Register("scholarai", named)
	r.SetDefault(fallback)

	assert.NotNil(t, r.Lookup("scholarai"))
	assert.NotNil(t, r.Lookup("unknown"))
	assert.ElementsMatch(t, []string{"scholarai"}, r.Types())
}
