package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWriterShapesRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "lendingd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("hello", MaskField("jwt_secret", "s3cret"), MaskField("account", "ql1abc"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "INFO", record["severity"])
	require.Equal(t, "hello", record["message"])
	require.Equal(t, "lendingd", record["service"])
	require.Equal(t, "test", record["env"])
	require.Equal(t, RedactedValue, record["jwt_secret"])
	require.Equal(t, "ql1abc", record["account"])
	require.Contains(t, record, "timestamp")
}

func TestSetupWithFileRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lendingd.log")
	logger, closer := SetupWithFile("lendingd", "", FileConfig{Path: path, MaxSizeMB: 1}, slog.LevelDebug)
	logger.Debug("to file")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestHandlerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "lendingd", "", slog.LevelInfo)
	logger.Info("wired", "oracle_dsn", "postgres://user:pw@db/prices", "credit_proof", "eyJ...", "run_id", "abc", "empty_secret", "")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, RedactedValue, record["oracle_dsn"])
	require.Equal(t, RedactedValue, record["credit_proof"])
	require.Equal(t, "abc", record["run_id"])
	require.Equal(t, "", record["empty_secret"])
	require.NotContains(t, record, "env")
}

func TestIsSensitive(t *testing.T) {
	require.True(t, IsSensitive("HMAC_SECRET"))
	require.True(t, IsSensitive("authorization"))
	require.False(t, IsSensitive("account"))
	require.False(t, IsSensitive("request_id"))
	require.False(t, IsSensitive("amount"))
}
