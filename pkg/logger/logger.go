package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the leveled logger the SDK writes request traces and
// recoverable anomalies to. Implementations live in this package
// (zerolog-backed, via New) and in the slog subpackage.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stdout
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(logData.writer).With().Timestamp().Logger()
	return
}

// fields converts alternating key/value args into a map zerolog can attach.
func fields(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		m[key] = args[i+1]
	}
	return m
}

func (ld *LogData) Error(msg string, args ...any) {
	ld.Logger.Error().Fields(fields(args)).Msg(msg)
}

func (ld *LogData) Warn(msg string, args ...any) {
	ld.Logger.Warn().Fields(fields(args)).Msg(msg)
}

func (ld *LogData) Info(msg string, args ...any) {
	ld.Logger.Info().Fields(fields(args)).Msg(msg)
}

func (ld *LogData) Debug(msg string, args ...any) {
	ld.Logger.Debug().Fields(fields(args)).Msg(msg)
}
