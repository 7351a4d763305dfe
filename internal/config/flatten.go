package config

import (
	"strings"
)

// secretKeys are the dotted keys never printed in full.
var secretKeys = map[string]bool{
	"server.token": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns nested config sections into dotted keys, so
// {"server": {"url": "http://x"}} becomes {"server.url": "http://x"}.
// Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	walk(nil, m, out)
	return out
}

func walk(path []string, section map[string]any, out map[string]any) {
	for name, v := range section {
		p := append(path[:len(path):len(path)], name)
		if sub, ok := v.(map[string]any); ok {
			walk(p, sub, out)
			continue
		}
		out[strings.Join(p, ".")] = v
	}
}

// Unflatten is the inverse of Flatten. A key that collides with a leaf on
// its way down replaces that leaf with a section.
func Unflatten(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		section := root
		for _, name := range parts[:len(parts)-1] {
			sub, ok := section[name].(map[string]any)
			if !ok {
				sub = make(map[string]any)
				section[name] = sub
			}
			section = sub
		}
		section[parts[len(parts)-1]] = v
	}
	return root
}

// MaskSecrets copies flat, replacing non-empty secret strings with "***"
// followed by at most their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}
