package session

import "testing"

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"http://192.168.1.50:3777", "abc123", "ws://192.168.1.50:3777/ws?token=abc123"},
		{"https://example.com", "a b", "wss://example.com/ws?token=a%20b"},
		{"http://localhost:3777/", "t", "ws://localhost:3777/ws?token=t"},
		{"ws://localhost:3777", "t", "ws://localhost:3777/ws?token=t"},
		{"https://example.com/plugin", "t", "wss://example.com/plugin/ws?token=t"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.base, tt.token)
		if err != nil {
			t.Errorf("Endpoint(%q, %q): unexpected error: %v", tt.base, tt.token, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Endpoint(%q, %q) = %q, want %q", tt.base, tt.token, got, tt.want)
		}
	}
}

func TestEndpoint_UnsupportedScheme(t *testing.T) {
	if _, err := Endpoint("ftp://example.com", "t"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
