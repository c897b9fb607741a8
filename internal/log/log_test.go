package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestInfoWritesKeyValues(t *testing.T) {
	buf := captureOutput(t)

	Info("announce", "kind", "time", "clips", 2)
	require.Contains(t, buf.String(), "[INFO] announce kind=time clips=2")
}

func TestErrorPrependsErr(t *testing.T) {
	buf := captureOutput(t)

	Error("rtc read failed", errors.New("i2c nack"), "addr", "0x68")
	require.Contains(t, buf.String(), "[ERROR] rtc read failed err=i2c nack addr=0x68")
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)

	Debug("hidden")
	require.Empty(t, buf.String())

	SetLevel(LevelDebug)
	Debug("shown")
	require.Contains(t, buf.String(), "[DEBUG] shown")

	buf.Reset()
	SetLevel(LevelError)
	Info("hidden")
	require.Empty(t, buf.String())
}

func TestOddKeyValueIgnored(t *testing.T) {
	buf := captureOutput(t)

	Info("msg", "a", 1, "dangling")
	require.Contains(t, buf.String(), "msg a=1\n")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "Info": LevelInfo, "ERROR": LevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}
