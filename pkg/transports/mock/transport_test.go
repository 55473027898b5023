package mock

import (
	"context"
	"testing"

	"github.com/harunnryd/sapa/pkg/transports"
)

func TestDeliverRecordsReplies(t *testing.T) {
	tr := New(transports.TurnHandlerFunc(func(_ context.Context, from, body string) string {
		return from + ":" + body
	}))
	if got := tr.Deliver(context.Background(), "a", "hi"); got != "a:hi" {
		t.Fatalf("unexpected reply %q", got)
	}
	if d := tr.Delivered(); len(d) != 1 || d[0].Reply != "a:hi" {
		t.Fatalf("unexpected delivered %+v", d)
	}

	sid, err := tr.Send(context.Background(), "b", "notice")
	if err != nil || sid != "mock-1" {
		t.Fatalf("unexpected send %q %v", sid, err)
	}
	if s := tr.Sent(); len(s) != 1 || s[0].Body != "notice" {
		t.Fatalf("unexpected sent %+v", s)
	}

	_ = tr.Stop()
	if got := tr.Deliver(context.Background(), "a", "again"); got != "" {
		t.Fatalf("expected no reply after stop, got %q", got)
	}
}
