package relay

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerFanOutAndDrop(t *testing.T) {
	b := NewBroker()
	idA, a := b.Subscribe()
	_, c := b.Subscribe()
	if b.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d; want 2", b.ClientCount())
	}

	args := []string{"BTC"}
	b.Observe("search", args)
	args[0] = "mutated"
	for _, ch := range []<-chan Event{a, c} {
		evt := <-ch
		if evt.Name != "search" || len(evt.Args) != 1 || evt.Args[0] != "BTC" {
			t.Fatalf("event = %+v; want search [BTC]", evt)
		}
	}

	b.Unsubscribe(idA)
	if _, ok := <-a; ok {
		t.Fatalf("unsubscribed channel still open")
	}
	for i := 0; i < subscriberBufSize+3; i++ {
		b.Publish(Event{Name: "tick"})
	}
	if b.Dropped() != 3 {
		t.Fatalf("Dropped() = %d; want 3", b.Dropped())
	}
}

func TestSSEHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?events=click", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Observe("hover", []string{"x"})
	b.Observe("click", []string{"a", "b"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream error = %v (lines %q)", err, lines)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: click" {
		t.Fatalf("first line = %q; want event: click", lines[0])
	}
	if !strings.HasPrefix(lines[1], `data: {"name":"click","args":["a","b"]`) {
		t.Fatalf("data line = %q", lines[1])
	}
}
