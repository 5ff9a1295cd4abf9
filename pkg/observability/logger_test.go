package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

// logLine decodes the slog JSON output for assertions
type logLine map[string]interface{}

func decodeLine(t *testing.T, buf *bytes.Buffer) logLine {
	t.Helper()
	var line logLine
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Failed to unmarshal log line: %v", err)
	}
	return line
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		line := decodeLine(t, &buf)
		if line["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", line["level"])
		}
		if line["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", line["msg"])
		}
	})

	t.Run("warn logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("before")
	if buf.Len() > 0 {
		t.Fatal("Debug should be suppressed at Info level")
	}

	logger.SetLevel(DebugLevel)
	logger.Debug("after")
	if buf.Len() == 0 {
		t.Error("Debug should be logged after SetLevel(DebugLevel)")
	}

	// Child loggers share the level var
	buf.Reset()
	child := logger.WithField("component", "test")
	logger.SetLevel(ErrorLevel)
	child.Info("suppressed")
	if buf.Len() > 0 {
		t.Error("Child logger should pick up the raised level")
	}
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").Info("message")

	line := decodeLine(t, &buf)
	if line["key"] != "value" {
		t.Errorf("Expected field 'key' to be 'value', got %v", line["key"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"key1": "value1",
		"key2": 42,
	}).Info("message")

	line := decodeLine(t, &buf)
	if line["key1"] != "value1" {
		t.Errorf("Expected field 'key1' to be 'value1', got %v", line["key1"])
	}
	if line["key2"] != float64(42) {
		t.Errorf("Expected field 'key2' to be 42, got %v", line["key2"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(context.DeadlineExceeded).Error("something went wrong")

	line := decodeLine(t, &buf)
	if _, exists := line["error"]; !exists {
		t.Error("Expected error field to exist")
	}

	// nil error is a no-op
	buf.Reset()
	logger.WithError(nil).Info("fine")
	line = decodeLine(t, &buf)
	if _, exists := line["error"]; exists {
		t.Error("nil error should not add a field")
	}
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			line := decodeLine(t, &buf)
			if line["msg"] != tt.want {
				t.Errorf("Expected message %q, got %v", tt.want, line["msg"])
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("RequestID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		if got := GetRequestID(ctx); got != "req-123" {
			t.Errorf("Expected request ID 'req-123', got %s", got)
		}
	})

	t.Run("UserID", func(t *testing.T) {
		ctx := WithUserID(context.Background(), "user-456")
		if got := GetUserID(ctx); got != "user-456" {
			t.Errorf("Expected user ID 'user-456', got %s", got)
		}
	})

	t.Run("Logger", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)
		if GetLogger(ctx) != logger {
			t.Error("Expected to retrieve the same logger from context")
		}
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		ctx := WithLogger(context.Background(), logger)
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithUserID(ctx, "user-456")

		FromContext(ctx).Info("test message")

		line := decodeLine(t, &buf)
		if line["request_id"] != "req-123" {
			t.Errorf("Expected request_id 'req-123', got %v", line["request_id"])
		}
		if line["user_id"] != "user-456" {
			t.Errorf("Expected user_id 'user-456', got %v", line["user_id"])
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"INFO", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"", InfoLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
