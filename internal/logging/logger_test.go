package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(debug bool) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := New(debug, true)
	l.out = buf
	return l, buf
}

func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "plain", input: "my-secret-password"},
		{name: "empty", input: ""},
		{name: "symbols", input: "password123!@#"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Secret(tt.input)
			assert.Equal(t, "[REDACTED]", s.String())
			assert.Equal(t, "[REDACTED]", s.GoString())
			assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
			assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
		})
	}
}

func TestConsoleLevels(t *testing.T) {
	t.Parallel()

	l, buf := newBufferedLogger(false)
	l.Info("info %d", 1)
	l.Warn("warn %d", 2)
	l.Error("error %d", 3)
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "✓ info 1")
	assert.Contains(t, out, "⚠ warn 2")
	assert.Contains(t, out, "✗ error 3")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\033[")
}

func TestConsoleDebugEnabled(t *testing.T) {
	t.Parallel()

	l, buf := newBufferedLogger(true)
	l.Debug("visible %s", "now")
	assert.Contains(t, buf.String(), "[DEBUG] visible now")
}

func TestConsoleWithFields(t *testing.T) {
	t.Parallel()

	l, buf := newBufferedLogger(false)
	child := l.With("arn", "arn:aws:secretsmanager:us-east-1:1:secret:x", "step", "createSecret")
	child.Info("processing")
	l.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "✓ processing arn=arn:aws:secretsmanager:us-east-1:1:secret:x step=createSecret", lines[0])
	assert.Equal(t, "✓ parent", lines[1])
}

func TestConsoleSecretNotLeaked(t *testing.T) {
	t.Parallel()

	l, buf := newBufferedLogger(true)
	l.Info("token %s", Secret("abcdef-123456"))
	l.Debug("password %v", Secret("hunter22"))

	out := buf.String()
	assert.NotContains(t, out, "abcdef-123456")
	assert.NotContains(t, out, "hunter22")
	assert.Equal(t, 2, strings.Count(out, "[REDACTED]"))
}

func TestJSONLogger(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	l := NewJSONWriter(false, buf).With("version", "v-1", "token", Secret("tok-abcdef"))
	l.Error("step failed: %s", "boom")
	l.Debug("dropped")
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "step failed: boom", entry["msg"])
	assert.Equal(t, "v-1", entry["version"])
	assert.Equal(t, "[REDACTED]", entry["token"])
	assert.Contains(t, entry, "ts")
}

func TestJSONLoggerDebug(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	l := NewJSONWriter(true, buf)
	l.Debug("details")
	require.NoError(t, l.Sync())
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestNop(t *testing.T) {
	t.Parallel()

	l := Nop()
	assert.NotPanics(t, func() {
		l.Info("x")
		l.With("a", 1).Error("y")
	})
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		secrets []string
		want    string
	}{
		{
			name:    "single",
			input:   "token=abc123xyz",
			secrets: []string{"abc123xyz"},
			want:    "token=[REDACTED]",
		},
		{
			name:    "multiple",
			input:   "user=svc pass=p4ssw0rd tok=t0k3n",
			secrets: []string{"p4ssw0rd", "t0k3n"},
			want:    "user=svc pass=[REDACTED] tok=[REDACTED]",
		},
		{
			name:    "short values are ignored",
			input:   "id=abc",
			secrets: []string{"abc", ""},
			want:    "id=abc",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Redact(tt.input, tt.secrets))
		})
	}
}
