package log

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// MaxLogFileSize caps client.log, the file is truncated once it grows past it
const MaxLogFileSize = 50 * 1024 * 1024

var bufferPool = buffer.NewPool()

type sizeCappedWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	maxSize int64
}

// Write truncates the file once it grows past maxSize
// The old handle stays in use until the truncated file is open, so a failed reopen loses no lines
func (w *sizeCappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if info, err := w.file.Stat(); err == nil && info.Size() > w.maxSize {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to truncate log file %s: %v, keeping current handle\n", w.path, err)
		} else {
			if err := w.file.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log file %s: %v\n", w.path, err)
			}
			w.file = f
		}
	}
	return w.file.Write(p)
}

func (w *sizeCappedWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// getLogFileWriter opens path for append, falling back to stderr
func getLogFileWriter(path string) zapcore.WriteSyncer {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v, falling back to stderr\n", path, err)
		return zapcore.AddSync(os.Stderr)
	}
	return &sizeCappedWriter{file: file, path: path, maxSize: MaxLogFileSize}
}

// lineEncoder renders "2006-01-02 15:04:05     LEVEL message\t{json fields}"
// The embedded JSON encoder only carries fields, including those added with Logger.With
type lineEncoder struct {
	zapcore.Encoder
}

func newFileEncoder() zapcore.Encoder {
	return &lineEncoder{Encoder: zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:     zapcore.OmitKey,
		LevelKey:       zapcore.OmitKey,
		TimeKey:        zapcore.OmitKey,
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone()}
}

func (e *lineEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	payload, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}
	defer payload.Free()

	buf := bufferPool.Get()
	buf.AppendString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.AppendString("     ")
	buf.AppendString(entry.Level.CapitalString())
	buf.AppendString(" ")
	buf.AppendString(entry.Message)

	fieldsJSON := bytes.TrimSpace(payload.Bytes())
	if len(fieldsJSON) > 2 { // skip "{}"
		buf.AppendString("\t")
		buf.AppendBytes(fieldsJSON)
	}

	buf.AppendString(zapcore.DefaultLineEnding)
	return buf, nil
}
