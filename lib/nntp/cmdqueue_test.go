package nntp

import (
	"testing"
	"time"
)

func TestCmdQueueFIFO(t *testing.T) {
	q := NewCmdQueue()
	a := NewListingList()
	b := NewGroupInfoList("misc.test")
	q.Enqueue(a)
	q.Enqueue(b)
	if q.Len() != 2 {
		t.Fatalf("len %d", q.Len())
	}
	if got := q.TryDequeue(); got != a {
		t.Error("wrong head")
	}
	if got := q.TryDequeue(); got != b {
		t.Error("wrong second")
	}
	if q.TryDequeue() != nil {
		t.Error("empty queue yielded an item")
	}
}

func TestCmdQueueWake(t *testing.T) {
	q := NewCmdQueue()
	select {
	case <-q.Wait():
		t.Fatal("spurious wake on empty queue")
	default:
	}
	q.Enqueue(NewListingList())
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no wake after enqueue")
	}
	// one item remains unclaimed, a racing consumer that drains after the
	// wake must still find it
	if q.TryDequeue() == nil {
		t.Fatal("item lost")
	}
}

// two items, one wake consumed, dequeueing the first re-arms the notify
// channel so the second is never stranded
func TestCmdQueueRewake(t *testing.T) {
	q := NewCmdQueue()
	q.Enqueue(NewListingList())
	q.Enqueue(NewListingList())
	<-q.Wait()
	if q.TryDequeue() == nil {
		t.Fatal("first item missing")
	}
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no re-wake with items remaining")
	}
	if q.TryDequeue() == nil {
		t.Fatal("second item missing")
	}
}
