package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucascis/discord-bot-sub000/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"ping", []string{"ping"}, "PONG"},
		{"get missing", []string{"get", "guild:1"}, "(nil)"},
		{"set", []string{"set", "guild:1", "v", "--ttl", "1m"}, "OK"},
		{"incr", []string{"incr", "counter"}, "1"},
		{"expire missing", []string{"expire", "nope", "1m"}, "false"},
		{"publish", []string{"publish", "events", "hello"}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Fields(out)[0])
		})
	}
}

func TestStatsCommand(t *testing.T) {
	out, err := run(t, "stats")
	require.NoError(t, err)

	var report map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Contains(t, report, "client")
	assert.Contains(t, report, "metrics")

	var health struct {
		Status string
	}
	require.NoError(t, json.Unmarshal(report["health"], &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestCommandErrors(t *testing.T) {
	_, err := run(t, "expire", "k", "soon")
	assert.ErrorContains(t, err, "invalid ttl")

	_, err = run(t, "get")
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("redis: [\n"), 0o600))
	_, err = run(t, "ping", "--config", broken)
	assert.ErrorContains(t, err, "failed to open store")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staleguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  enabled: false\n"), 0o600))

	out, err := run(t, "incr", "plays", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

type fakeSubscription struct {
	ch chan store.Message
}

func (f *fakeSubscription) Messages() <-chan store.Message { return f.ch }
func (f *fakeSubscription) Close() error                   { return nil }

func TestPrintMessages(t *testing.T) {
	sub := &fakeSubscription{ch: make(chan store.Message, 3)}
	sub.ch <- store.Message{Channel: "events", Payload: "a"}
	sub.ch <- store.Message{Channel: "events", Payload: "b"}
	sub.ch <- store.Message{Channel: "events", Payload: "c"}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, printMessages(cmd, sub, 2))
	assert.Equal(t, "events: a\nevents: b\n", out.String())

	close(sub.ch)
	out.Reset()
	require.NoError(t, printMessages(cmd, sub, 0))
	assert.Equal(t, "events: c\n", out.String())
}
