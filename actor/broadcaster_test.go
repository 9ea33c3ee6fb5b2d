package actor

import (
	"testing"
	"time"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster[int](4)
	c1, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c2, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if ok := b.Send(1); !ok {
		t.Fatalf("send returned false with subscribers present")
	}

	for _, c := range []Consumer[int]{c1, c2} {
		select {
		case v := <-c.C():
			if v != 1 {
				t.Fatalf("got %d, want 1", v)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestBroadcasterNoSubscribers(t *testing.T) {
	b := NewBroadcaster[string](2)
	if ok := b.Send("x"); ok {
		t.Fatal("send returned true with no subscribers")
	}
}

func TestBroadcasterDropsOldestOnOverflow(t *testing.T) {
	b := NewBroadcaster[int](2)
	c, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Block the pump by not reading yet. Push more than the backlog allows;
	// the oldest values should be evicted, keeping only the most recent.
	for i := 1; i <= 5; i++ {
		b.Send(i)
	}

	time.Sleep(50 * time.Millisecond)

	var got []int
	timeout := time.After(time.Second)
	for len(got) < cap(c.sub.out)+1 {
		select {
		case v, ok := <-c.C():
			if !ok {
				break
			}
			got = append(got, v)
			if len(got) == cap(c.sub.out) {
				goto done
			}
		case <-timeout:
			goto done
		}
	}
done:
	if len(got) == 0 {
		t.Fatal("expected at least one delivered message")
	}
	last := got[len(got)-1]
	if last != 5 {
		t.Fatalf("expected the newest message (5) to survive, got trailing value %d (all: %v)", last, got)
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[int](2)
	c, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c.Unsubscribe()

	select {
	case _, ok := <-c.C():
		if ok {
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBroadcasterCloseRejectsNewSubscribers(t *testing.T) {
	b := NewBroadcaster[int](2)
	b.Close()
	if _, err := b.Subscribe(); err != ErrBroadcasterClosed {
		t.Fatalf("expected ErrBroadcasterClosed, got %v", err)
	}
}
