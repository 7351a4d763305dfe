package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "simple",
			in:   map[string]any{"a": "hello", "b": 42.0},
			want: map[string]any{"a": "hello", "b": 42.0},
		},
		{
			name: "nested",
			in: map[string]any{
				"server":    map[string]any{"url": "http://localhost:8000", "token": "tok"},
				"log_level": "info",
			},
			want: map[string]any{"server.url": "http://localhost:8000", "server.token": "tok", "log_level": "info"},
		},
		{
			name: "deeply nested",
			in:   map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}},
			want: map[string]any{"a.b.c": "deep"},
		},
		{
			name: "empty nested map produces nothing",
			in:   map[string]any{"a": map[string]any{}},
			want: map[string]any{},
		},
		{
			name: "mixed types",
			in:   map[string]any{"num": 42.0, "bool": true, "live": map[string]any{"resync_schedule": "@every 5m"}},
			want: map[string]any{"num": 42.0, "bool": true, "live.resync_schedule": "@every 5m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

func TestUnflatten(t *testing.T) {
	got := Unflatten(map[string]any{
		"server.url":   "http://localhost:8000",
		"server.token": "tok",
		"a.b.c":        "deep",
		"log_level":    "info",
	})

	server, ok := got["server"].(map[string]any)
	require.True(t, ok, "expected server to be map, got %T", got["server"])
	assert.Equal(t, "http://localhost:8000", server["url"])
	assert.Equal(t, "tok", server["token"])
	assert.Equal(t, "info", got["log_level"])

	a := got["a"].(map[string]any)
	b := a["b"].(map[string]any)
	assert.Equal(t, "deep", b["c"])

	assert.Empty(t, Unflatten(map[string]any{}))
}

func TestFlattenUnflattenRestoresConfigMap(t *testing.T) {
	cfg := Default()
	cfg.Server.Token = "tok-123456"
	original, err := ToMap(cfg)
	require.NoError(t, err)

	assert.Equal(t, original, Unflatten(Flatten(original)))
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		token any
		want  any
	}{
		{"long", "tok-abcdef1234", "***1234"},
		{"empty stays empty", "", ""},
		{"short", "ab", "***ab"},
		{"exactly four", "abcd", "***abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{"server.token": tt.token, "server.url": "http://x"})
			assert.Equal(t, tt.want, got["server.token"])
			assert.Equal(t, "http://x", got["server.url"])
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, IsSecretKey("server.token"))
	assert.False(t, IsSecretKey("server.url"))
}
