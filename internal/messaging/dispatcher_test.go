package messaging

import (
	"errors"
	"sync"
	"testing"
)

func TestDispatcher_SameKeyOrdering(t *testing.T) {
	d := NewDispatcher(16)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 10; i++ {
		i := i
		err := d.Submit("dev-1", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	d.Close()

	if len(order) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("task order = %v, want submission order", order)
		}
	}
}

func TestDispatcher_KeysRunIndependently(t *testing.T) {
	d := NewDispatcher(16)

	// A task on dev-1 blocks until dev-2's task has run, which can
	// only happen if the two keys have independent workers.
	dev2Done := make(chan struct{})
	dev1Done := make(chan struct{})

	err := d.Submit("dev-1", func() {
		<-dev2Done
		close(dev1Done)
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	err = d.Submit("dev-2", func() {
		close(dev2Done)
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	<-dev1Done
	d.Close()

	if d.KeyCount() != 2 {
		t.Errorf("KeyCount() = %d, want 2", d.KeyCount())
	}
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	d := NewDispatcher(16)
	d.Close()

	err := d.Submit("dev-1", func() {})
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Submit() error = %v, want ErrDispatcherClosed", err)
	}
}

func TestDispatcher_CloseDrainsQueuedTasks(t *testing.T) {
	d := NewDispatcher(16)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		err := d.Submit("dev-1", func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	d.Close()

	if ran != 5 {
		t.Errorf("ran %d tasks after Close, want 5", ran)
	}
}

func TestDispatcher_ConcurrentSubmitAndClose(t *testing.T) {
	// Submitters hammer existing keys while Close runs; every Submit
	// must either enqueue or return ErrDispatcherClosed, never panic
	// with a send on a closed channel.
	for round := 0; round < 20; round++ {
		d := NewDispatcher(16)
		keys := []string{"dev-1", "dev-2", "dev-3"}
		for _, key := range keys {
			if err := d.Submit(key, func() {}); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, key := range keys {
			key := key
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 100; i++ {
					err := d.Submit(key, func() {})
					if errors.Is(err, ErrDispatcherClosed) {
						return
					}
					// A full queue is an accepted outcome; anything
					// else after Close would be the send racing the
					// channel close.
				}
			}()
		}

		close(start)
		d.Close()
		wg.Wait()
	}
}

func TestDispatcher_CloseTwice(t *testing.T) {
	d := NewDispatcher(16)
	d.Close()
	d.Close() // must not panic
}
