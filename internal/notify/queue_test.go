package notify

import "testing"

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue(0)
	q.Push(Message{Text: "a"})
	q.Push(Message{Text: "b"})

	first, ok := q.Pop()
	if !ok || first.Text != "a" {
		t.Fatalf("expected a first, got %+v ok=%v", first, ok)
	}
	second, ok := q.Pop()
	if !ok || second.Text != "b" {
		t.Fatalf("expected b second, got %+v ok=%v", second, ok)
	}
}

func TestQueue_PriorityJumpsFront(t *testing.T) {
	q := NewQueue(0)
	q.Push(Message{Text: "deal"})
	q.Push(Message{Text: "interactive", Priority: PriorityHigh})

	first, _ := q.Pop()
	if first.Text != "interactive" {
		t.Fatalf("expected interactive message first, got %q", first.Text)
	}
}

func TestQueue_DropsBeyondCapacity(t *testing.T) {
	q := NewQueue(1)
	if !q.Push(Message{Text: "a"}) {
		t.Fatal("first push should succeed")
	}
	if q.Push(Message{Text: "b"}) {
		t.Fatal("second push should be dropped at capacity")
	}
}

func TestQueue_PopEmptyReturnsFalse(t *testing.T) {
	q := NewQueue(0)
	_, ok := q.Pop()
	if ok {
		t.Fatal("expected Pop on empty queue to return ok=false")
	}
}
