// Package logging provides structured JSON logging for the judgment node.
//
// Every log entry is a single-line JSON object carrying a component name,
// an instance/host identity, and an optional user/event correlation pair,
// so that log aggregation backends (CloudWatch, ELK, Loki) can filter and
// join on them without a parsing step.
package logging

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Logger emits structured log entries for one component.
type Logger struct {
	Component string
	Instance  string
	Host      string
}

// Entry is the on-wire JSON shape of a single log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance_id"`
	Host      string                 `json:"host"`
	UserID    string                 `json:"user_id,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component (e.g. "orchestrator", "chain").
func New(component string) *Logger {
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance = "unknown"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Logger{Component: component, Instance: instance, Host: host}
}

// Log writes one structured entry to stdout.
func (l *Logger) Log(level Level, userID, eventID, message string, fields map[string]interface{}) {
	e := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.Instance,
		Host:      l.Host,
		UserID:    userID,
		EventID:   eventID,
		Message:   message,
		Fields:    fields,
	}
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("ERROR: logging: failed to marshal entry: %v", err)
		return
	}
	log.Println(string(b))
}

func (l *Logger) Debug(userID, eventID, message string, fields map[string]interface{}) {
	l.Log(Debug, userID, eventID, message, fields)
}

func (l *Logger) Info(userID, eventID, message string, fields map[string]interface{}) {
	l.Log(Info, userID, eventID, message, fields)
}

func (l *Logger) Warn(userID, eventID, message string, fields map[string]interface{}) {
	l.Log(Warn, userID, eventID, message, fields)
}

func (l *Logger) Error(userID, eventID, message string, fields map[string]interface{}) {
	l.Log(Error, userID, eventID, message, fields)
}

// ErrorWithErr logs an error message, folding err into the fields map under "error".
func (l *Logger) ErrorWithErr(userID, eventID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(userID, eventID, message, fields)
}

// InfoWithDuration logs an info message annotated with an elapsed duration.
func (l *Logger) InfoWithDuration(userID, eventID, message string, d time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = d.Milliseconds()
	l.Info(userID, eventID, message, fields)
}
