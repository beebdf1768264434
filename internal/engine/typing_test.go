package engine

import (
	"testing"
	"time"
)

// runTypingWorker emulates the room worker loop: every mutation of the
// typingSet goes through the posts channel, exactly as in a live room.
func runTypingWorker(t *testing.T) (chan func(), func()) {
	t.Helper()
	posts := make(chan func(), 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fn := range posts {
			fn()
		}
	}()
	return posts, func() {
		close(posts)
		<-done
	}
}

func TestTypingSet_ExpiresOnce(t *testing.T) {
	posts, stop := runTypingWorker(t)
	defer stop()

	expired := make(chan string, 8)
	post := func(fn func()) bool { posts <- fn; return true }
	s := newTypingSet(30*time.Millisecond, post, func(userID, _ string) {
		expired <- userID
	})

	posts <- func() { s.arm("u1", "alice") }

	select {
	case userID := <-expired:
		if userID != "u1" {
			t.Errorf("expired user = %q, want u1", userID)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never expired")
	}

	select {
	case userID := <-expired:
		t.Errorf("second expiry for %q; onExpire must fire at most once per arm", userID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTypingSet_RearmReplacesTimer(t *testing.T) {
	posts, stop := runTypingWorker(t)
	defer stop()

	expired := make(chan string, 8)
	post := func(fn func()) bool { posts <- fn; return true }
	s := newTypingSet(50*time.Millisecond, post, func(userID, _ string) {
		expired <- userID
	})

	posts <- func() { s.arm("u1", "alice") }
	posts <- func() { s.arm("u1", "alice") }

	var count int
	deadline := time.After(400 * time.Millisecond)
	for {
		select {
		case <-expired:
			count++
		case <-deadline:
			if count != 1 {
				t.Fatalf("expiry count = %d, want exactly 1 after re-arm", count)
			}
			return
		}
	}
}

func TestTypingSet_CancelSuppressesExpiry(t *testing.T) {
	posts, stop := runTypingWorker(t)
	defer stop()

	expired := make(chan string, 8)
	post := func(fn func()) bool { posts <- fn; return true }
	s := newTypingSet(30*time.Millisecond, post, func(userID, _ string) {
		expired <- userID
	})

	cancelled := make(chan bool, 1)
	posts <- func() { s.arm("u1", "alice") }
	posts <- func() { cancelled <- s.cancel("u1") }

	if !<-cancelled {
		t.Fatal("cancel should report an armed timer")
	}
	select {
	case <-expired:
		t.Fatal("onExpire fired after cancel")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTypingSet_CancelUnarmed(t *testing.T) {
	posts, stop := runTypingWorker(t)
	defer stop()

	post := func(fn func()) bool { posts <- fn; return true }
	s := newTypingSet(time.Second, post, func(string, string) {})

	result := make(chan bool, 1)
	posts <- func() { result <- s.cancel("nobody") }
	if <-result {
		t.Error("cancel of an unarmed user should report false")
	}
}
