package config

import (
	"testing"
)

func TestExpand(t *testing.T) {
	env := map[string]string{
		"REDIS_HOST": "broker.local",
		"EMPTY":      "",
		"CACHE_DIR":  "/var/cache/uadp",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	tests := []struct {
		name, in, want string
	}{
		{"set", "url: redis://${REDIS_HOST}:6379", "url: redis://broker.local:6379"},
		{"unset", "dir: ${MISSING}", "dir: "},
		{"fallback when unset", "dir: ${MISSING:-/tmp/meta}", "dir: /tmp/meta"},
		{"fallback when empty", "dir: ${EMPTY:-/tmp/meta}", "dir: /tmp/meta"},
		{"fallback ignored when set", "dir: ${CACHE_DIR:-/tmp/meta}", "dir: /var/cache/uadp"},
		{"empty fallback", "dir: ${MISSING:-}", "dir: "},
		{"escaped", "topic: $${REDIS_HOST}", "topic: ${REDIS_HOST}"},
		{"several", "${REDIS_HOST}|${CACHE_DIR}", "broker.local|/var/cache/uadp"},
		{"bare dollar untouched", "price: $5 and $REDIS_HOST", "price: $5 and $REDIS_HOST"},
		{"no references", "no variables here", "no variables here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expand(tt.in, lookup); got != tt.want {
				t.Errorf("expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("UADP_TEST_TRANSPORT", "redis://broker.local:6379")

	in := "transport:\n  url: ${UADP_TEST_TRANSPORT}\n"
	want := "transport:\n  url: redis://broker.local:6379\n"
	if got := ExpandEnv(in); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
