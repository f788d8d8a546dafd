package provider

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/devopsext/weightapi/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	testRootID  = "a3ce929d0e0e4736"
	testChildID = "00f067aa0ba902b7"
)

func testStdout(level string) *Stdout {

	stdout := NewStdout(StdoutOptions{
		Format:          "template",
		Level:           level,
		Template:        "{{.msg}}",
		TimestampFormat: time.RFC3339Nano,
	})
	stdout.SetCallerOffset(1)
	return stdout
}

func testJSONStdout(buf *bytes.Buffer) *Stdout {

	stdout := NewStdout(StdoutOptions{
		Format:          "json",
		Level:           "debug",
		TimestampFormat: time.RFC3339Nano,
	})
	stdout.SetOutput(buf)
	return stdout
}

func testJSONLines(buf *bytes.Buffer) []map[string]interface{} {

	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := make(map[string]interface{})
		if err := json.Unmarshal([]byte(line), &m); err == nil {
			lines = append(lines, m)
		}
	}
	return lines
}

// testSpans returns a finished root span and its failed child, in export order.
func testSpans() []*common.SpanData {

	traceID, _ := trace.TraceIDFromHex(testTraceID)
	rootID, _ := trace.SpanIDFromHex(testRootID)
	childID, _ := trace.SpanIDFromHex(testChildID)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	child := &common.SpanData{
		TraceID:       traceID,
		SpanID:        childID,
		ParentSpanID:  rootID,
		Name:          "weather-call",
		StartTime:     start.Add(time.Millisecond),
		EndTime:       start.Add(5 * time.Millisecond),
		Attributes:    []attribute.KeyValue{attribute.String("city", "Bad Town")},
		Status:        codes.Error,
		StatusMessage: "invalid operation",
		Exceptions: []common.ExceptionRecord{{
			Type:       "server.InvalidOperationError",
			Message:    "invalid operation",
			Stacktrace: "main.go:1",
			Time:       start.Add(4 * time.Millisecond),
		}},
		Events: []common.Event{{
			Name: "cache-miss",
			Time: start.Add(2 * time.Millisecond),
		}},
		Service: "weightapi-test",
	}

	root := &common.SpanData{
		TraceID:    traceID,
		SpanID:     rootID,
		Name:       "GET /weather/:city",
		StartTime:  start,
		EndTime:    start.Add(10 * time.Millisecond),
		Attributes: []attribute.KeyValue{attribute.Int("http.status_code", 200)},
		Status:     codes.Ok,
		Service:    "weightapi-test",
	}
	return []*common.SpanData{child, root}
}
