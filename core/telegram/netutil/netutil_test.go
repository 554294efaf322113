package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "dial", err: dial, want: true},
		{name: "wrapped dial", err: &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, want: true},
		{name: "plain", err: errors.New("bad request"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, "timeout", Classify(fmt.Errorf("send: %w", context.DeadlineExceeded)))
	assert.Equal(t, "dial", Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "dns", Classify(&net.DNSError{Name: "api.telegram.org"}))
	assert.Equal(t, "http_4xx", Classify(errors.New("telegram: chat not found (400)")))
	assert.Equal(t, "http_5xx", Classify(errors.New("telegram: internal error (502)")))
	assert.Equal(t, "unknown", Classify(errors.New("boom")))
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_ghi/sendMessage": EOF`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, Redact(err))
	assert.True(t, NotModified(errors.New("telegram: Bad Request: message is not modified (400)")))
}
