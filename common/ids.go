package common

import (
	"encoding/binary"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

func TraceIDHigh(id trace.TraceID) uint64 {
	return binary.BigEndian.Uint64(id[0:8])
}

func TraceIDLow(id trace.TraceID) uint64 {
	return binary.BigEndian.Uint64(id[8:16])
}

func TraceIDFromUint64(high, low uint64) trace.TraceID {
	var id trace.TraceID
	binary.BigEndian.PutUint64(id[0:8], high)
	binary.BigEndian.PutUint64(id[8:16], low)
	return id
}

func SpanIDToUint64(id trace.SpanID) uint64 {
	return binary.BigEndian.Uint64(id[:])
}

func SpanIDFromUint64(v uint64) trace.SpanID {
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], v)
	return id
}

// root spans reuse the low half of the trace id so 64-bit backends see the same
// value as trace and root span id
func rootSpanID(id trace.TraceID) trace.SpanID {
	var sid trace.SpanID
	copy(sid[:], id[8:16])
	return sid
}

func TraceIDHexToUint64(s string) (uint64, uint64) {

	id, err := trace.TraceIDFromHex(s)
	if err != nil {
		return 0, 0
	}
	return TraceIDHigh(id), TraceIDLow(id)
}

func SpanIDHexToUint64(s string) uint64 {

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}
