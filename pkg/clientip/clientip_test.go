package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"203.0.113.9:5050", "203.0.113.9"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"[::ffff:192.0.2.4]:80", "192.0.2.4"},
		{"198.51.100.2", "198.51.100.2"},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			r.Header.Set("X-Forwarded-For", "10.9.9.9")
			assert.Equal(t, tt.want, RealClientIP(r))
		})
	}
}
