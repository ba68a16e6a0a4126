package log

import "time"

// Logger provides structured logging capabilities.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// With returns a Logger that prepends fields to every entry written through it.
// A nil logger yields a NoopLogger.
func With(l Logger, fields ...Field) Logger {
	if l == nil {
		return NoopLogger{}
	}
	if len(fields) == 0 {
		return l
	}
	if c, ok := l.(*contextLogger); ok {
		merged := make([]Field, 0, len(c.fields)+len(fields))
		merged = append(merged, c.fields...)
		merged = append(merged, fields...)
		return &contextLogger{next: c.next, fields: merged}
	}
	return &contextLogger{next: l, fields: fields}
}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

type contextLogger struct {
	next   Logger
	fields []Field
}

func (c *contextLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(c.fields)+len(fields))
	out = append(out, c.fields...)
	return append(out, fields...)
}

func (c *contextLogger) Debug(msg string, fields ...Field) { c.next.Debug(msg, c.merge(fields)...) }
func (c *contextLogger) Info(msg string, fields ...Field)  { c.next.Info(msg, c.merge(fields)...) }
func (c *contextLogger) Warn(msg string, fields ...Field)  { c.next.Warn(msg, c.merge(fields)...) }
func (c *contextLogger) Error(msg string, fields ...Field) { c.next.Error(msg, c.merge(fields)...) }
