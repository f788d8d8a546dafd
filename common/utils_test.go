package common

import (
	"math"
	"os"
	"testing"
)

func TestUtilsTraceID(t *testing.T) {

	s := TraceIDFromUint64(0, 0).String()
	if len(s) != 32 {
		t.Fatal("Wrong trace ID lenght")
	}

	h, l := TraceIDHexToUint64(s)
	if h != 0 || l != 0 {
		t.Fatal("Wrong trace ID hex")
	}

	s = TraceIDFromUint64(0, 1).String()
	if s != "00000000000000000000000000000001" {
		t.Fatal("Wrong trace ID num")
	}

	h, l = TraceIDHexToUint64(s)
	if h != 0 || l != 1 {
		t.Fatal("Wrong trace ID hex")
	}

	s = TraceIDFromUint64(1, uint64(math.Pow(2, 32))).String()
	if s != "00000000000000010000000100000000" {
		t.Fatal("Wrong trace ID num")
	}

	h, l = TraceIDHexToUint64(s)
	if h != 1 || l != uint64(math.Pow(2, 32)) {
		t.Fatal("Wrong trace ID hex")
	}

	id := TraceIDFromUint64(h, l)
	if id.String() != s {
		t.Fatal("Wrong trace ID bytes")
	}
	if TraceIDHigh(id) != h || TraceIDLow(id) != l {
		t.Fatal("Wrong trace ID halves")
	}
}

func TestUtilsSpanID(t *testing.T) {

	s := SpanIDFromUint64(0).String()
	if len(s) != 16 {
		t.Fatal("Wrong span ID lenght")
	}

	i := SpanIDHexToUint64(s)
	if i != 0 {
		t.Fatal("Wrong span ID hex")
	}

	s = SpanIDFromUint64(1).String()
	if s != "0000000000000001" {
		t.Fatal("Wrong span ID num")
	}

	s = SpanIDFromUint64(uint64(math.Pow(2, 32))).String()
	if s != "0000000100000000" {
		t.Fatal("Wrong span ID num")
	}

	i = SpanIDHexToUint64(s)
	if i != uint64(math.Pow(2, 32)) {
		t.Fatal("Wrong span ID hex")
	}

	s = SpanIDFromUint64(math.MaxUint64).String()
	if s != "ffffffffffffffff" {
		t.Fatal("Wrong span ID num")
	}

	if SpanIDToUint64(SpanIDFromUint64(math.MaxUint64)) != math.MaxUint64 {
		t.Fatal("Wrong span ID bytes")
	}

	if SpanIDHexToUint64("not-hex") != 0 {
		t.Fatal("Wrong span ID parse")
	}
}

func TestUtilsRootSpanID(t *testing.T) {

	id := TraceIDFromUint64(7, 42)
	if SpanIDToUint64(rootSpanID(id)) != 42 {
		t.Fatal("Invalid root span ID")
	}
}

func TestUtilsKeyValues(t *testing.T) {

	os.Setenv("WEIGHTAPI_TEST_REGION", "eu-west")
	defer os.Unsetenv("WEIGHTAPI_TEST_REGION")

	m := GetKeyValues("team=platform, region=${WEIGHTAPI_TEST_REGION}, zone=${WEIGHTAPI_TEST_ZONE:a},broken,=x")
	if len(m) != 3 {
		t.Fatalf("Invalid key values count %d", len(m))
	}
	if m["team"] != "platform" {
		t.Fatal("Invalid plain value")
	}
	if m["region"] != "eu-west" {
		t.Fatal("Invalid env value")
	}
	if m["zone"] != "a" {
		t.Fatal("Invalid default value")
	}

	if len(GetKeyValues("")) != 0 {
		t.Fatal("Invalid empty key values")
	}
}

func TestUtilsCallerInfo(t *testing.T) {

	function, file, line := GetCallerInfo(2)
	if function != "common.TestUtilsCallerInfo" {
		t.Fatalf("Invalid caller function %s", function)
	}
	if file == "" || line == 0 {
		t.Fatal("Invalid caller file")
	}
}

func TestUtilsMetricName(t *testing.T) {

	if MetricName("spans_exported", "traces") != "traces_spans_exported" {
		t.Fatal("Invalid metric name")
	}
	if MetricName("requests", "", "http") != "http_requests" {
		t.Fatal("Invalid metric name with empty prefix")
	}
}
