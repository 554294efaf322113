package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(h), func() string {
		if err := aw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, read := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "engine"), slog.LevelInfo, "transition",
		slog.String("status", "OK"),
		slog.String("state", "AWAITING_PHOTO"),
	)

	tokens := strings.Split(read(), " ")
	expected := []string{"ts=", "level=INFO", "component=engine", "event=transition", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "state=AWAITING_PHOTO"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%v)", len(tokens), tokens)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, read := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "ledger"), slog.LevelError, "deduct",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "REFUND_FAILED"),
	)

	line := read()
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"ledger"`, `"event":"deduct"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	for _, format := range []logFormat{formatKV, formatJSON} {
		log, read := newTestLogger(t, format)
		rawRID := BuildRID(123, 456, 789)
		LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test")
		line := read()

		switch format {
		case formatKV:
			if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
				t.Fatalf("expected compact rid, got %s", line)
			}
			if strings.Contains(line, "rid_full=") {
				t.Fatalf("rid_full should be omitted in KV output, got %s", line)
			}
		case formatJSON:
			if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
				t.Fatalf("expected rid_full in JSON output, got %s", line)
			}
		}
	}
}

func TestStructuredHandlerDurationsAndGroups(t *testing.T) {
	log, read := newTestLogger(t, formatKV)
	log.WithGroup("gen").Info("call",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Group("ledger", slog.String("kind", "deduct")),
	)
	line := read()
	for _, want := range []string{"event=call", "gen.duration_ms=2", "gen.ledger.kind=deduct", "component=app"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
}

func TestStructuredHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	log := slog.New(newStructuredHandler(handlerConfig{level: slog.LevelWarn, writer: aw, format: formatKV}))
	log.Info("hidden")
	log.Warn("shown")
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "event=shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allow #%d = %v, want %v", i, got[i], want[i])
		}
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/10": {1, 10},
		"20":   {1, 20},
		"0":    {0, 0},
		"x/y":  {0, 0},
		"":     {0, 0},
	}
	for in, want := range cases {
		num, den := parseRatioSpec(in)
		if num != want[0] || den != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", in, num, den, want[0], want[1])
		}
	}
}
