package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	lg, err := New(LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, lg.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, lg.Formatter)

	lg, err = New(LoggingConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lg.GetLevel())
}

func TestNewRejectsUnknownOutput(t *testing.T) {
	_, err := New(LoggingConfig{Output: "syslog"})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "logs", "pots")
	lg, err := New(LoggingConfig{Output: "file", FilePrefix: prefix})
	require.NoError(t, err)
	lg.Info("hello")

	matches, err := filepath.Glob(prefix + "-*.log")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNamedEntryCarriesComponent(t *testing.T) {
	lg := NewDefault("pots")
	var buf bytes.Buffer
	lg.SetOutput(&buf)
	lg.SetFormatter(&logrus.JSONFormatter{})

	keeper := lg.Named("keeper")
	assert.Equal(t, "keeper", keeper.Component())
	keeper.Entry().Info("tick")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "keeper", line["component"])
	assert.Equal(t, "tick", line["msg"])
}
