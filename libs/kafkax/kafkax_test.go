package kafkax

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestExtractEventMetaFallsBackToTopicButNotKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := ExtractEventMeta(kafka.Message{Topic: "billing.plan.changed.v1", Key: []byte("biz-1"), Time: ts})
	if meta.EventID != "" || meta.EventType != "billing.plan.changed.v1" || !meta.OccurredAt.Equal(ts) {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	in := EventMeta{EventID: "e-9", EventType: "booking.confirmed.v1", OccurredAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)}
	out := ExtractEventMeta(kafka.Message{Topic: "ignored", Key: []byte("k"), Headers: in.Headers()})
	if out.EventID != in.EventID || out.EventType != in.EventType || !out.OccurredAt.Equal(in.OccurredAt) {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("got %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := propagation.TraceContext{}.Extract(context.Background(), propagation.MapCarrier{"traceparent": tp})

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "traceparent", Value: []byte("stale")}})
	if len(headers) != 1 || string(headers[0].Value) != tp {
		t.Fatalf("expected traceparent to be overwritten in place, got %v", headers)
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(out, carrier)
	if carrier["traceparent"] != tp {
		t.Fatalf("extracted traceparent = %q", carrier["traceparent"])
	}
}

func TestInjectTraceHeadersAppendsWhenAbsent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := propagation.TraceContext{}.Extract(context.Background(), propagation.MapCarrier{"traceparent": tp})

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e-1")}})
	if HeaderValue(headers, "traceparent") != tp {
		t.Fatalf("traceparent not appended: %v", headers)
	}
	if HeaderValue(headers, HeaderEventID) != "e-1" {
		t.Fatalf("existing headers lost: %v", headers)
	}
}
