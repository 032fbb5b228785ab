package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointFromOrigin(t *testing.T) {
	tests := []struct {
		origin string
		path   string
		want   string
	}{
		{"http://localhost:5173", "/ws", "ws://localhost:5173/ws"},
		{"https://dash.example.com", "/ws", "wss://dash.example.com/ws"},
		{"https://dash.example.com:8443/app/", "/ws", "wss://dash.example.com:8443/ws"},
		{"http://127.0.0.1:8000", "ws", "ws://127.0.0.1:8000/ws"},
		{"http://127.0.0.1:8000", "", "ws://127.0.0.1:8000/"},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, err := EndpointFromOrigin(tt.origin, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointFromOriginErrors(t *testing.T) {
	_, err := EndpointFromOrigin("ftp://example.com", "/ws")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = EndpointFromOrigin("localhost", "/ws")
	assert.Error(t, err)

	_, err = EndpointFromOrigin("http://[::1", "/ws")
	assert.Error(t, err)
}
