package ws

import "testing"

func TestReplayGateBuffersUntilRelease(t *testing.T) {
	sub := newRecordingSubscriber()
	gate := NewReplayGate(sub)

	for _, msg := range []string{"2", "3"} {
		if err := gate.Send([]byte(msg)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	sub.mu.Lock()
	buffered := len(sub.messages)
	sub.mu.Unlock()
	if buffered != 0 {
		t.Fatal("messages leaked before release")
	}

	// History up to "2" was written directly.
	_ = sub.Send([]byte("1"))
	_ = sub.Send([]byte("2"))
	if err := gate.Release(func(p []byte) bool { return string(p) <= "2" }); err != nil {
		t.Fatalf("release: %v", err)
	}
	for _, msg := range []string{"2", "4"} {
		if err := gate.Send([]byte(msg)); err != nil {
			t.Fatalf("send after release: %v", err)
		}
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	var got string
	for _, m := range sub.messages {
		got += string(m)
	}
	if got != "1234" {
		t.Fatalf("expected ordered stream without duplicates, got %q", got)
	}
}

func TestReplayGateClosesWrapped(t *testing.T) {
	sub := newRecordingSubscriber()
	NewReplayGate(sub).Close()
	if !sub.closed {
		t.Fatal("expected wrapped subscriber closed")
	}
}
