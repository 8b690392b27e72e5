package logger_test

import (
	"bytes"
	"testing"

	"github.com/stranddb/strand.go/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.NotNil(t, templogger.Logger)
	// Get Stats Before
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	// Get Stats After
	require.Contains(t, buff.String(), "Test")
}

func TestLogLeveled(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)

	templogger.Warn("range gone", "containerRid", "coll1", "substatus", 1002)
	require.Contains(t, buff.String(), "range gone")
	require.Contains(t, buff.String(), "coll1")
	require.Contains(t, buff.String(), "warn")
}
