package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestFromContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, UserIDKey, "user-1")
	ctx = WithContext(ctx, GenerationIDKey, "gen-1")

	Error(ctx, "deploy failed", errors.New("boom"), "template", "portfolio")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{
		"request_id":    "req-1",
		"user_id":       "user-1",
		"generation_id": "gen-1",
		"error":         "boom",
		"template":      "portfolio",
		"msg":           "deploy failed",
	} {
		if got, _ := entry[key].(string); got != want {
			t.Fatalf("expected %s=%q, got %q", key, want, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCredentialsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	Info(context.Background(), "token refreshed", "refresh_token", "rt-secret", "provider", "github")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["refresh_token"] != redacted {
		t.Fatalf("refresh token leaked: %v", entry["refresh_token"])
	}
	if entry["provider"] != "github" {
		t.Fatalf("unrelated fields should be kept, got %v", entry["provider"])
	}
}
