package queue

import "testing"

func TestFIFOOrder(t *testing.T) {
	q := New(3)

	m1 := NewText("+15550100", "first")
	m2 := NewText("+15550100", "second")
	m3 := NewText("+15550101", "third")

	q.Enqueue(m1)
	q.Enqueue(m2)
	q.Enqueue(m3)

	if q.Len() != 3 {
		t.Fatalf("Expected 3 pending messages, got %d", q.Len())
	}

	for i, want := range []*Message{m1, m2, m3} {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d returned empty", i)
		}
		if got.ID != want.ID {
			t.Errorf("Dequeue %d: expected %s, got %s", i, want.ID, got.ID)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Empty queue should not dequeue")
	}
}

func TestPushFrontPreservesOrder(t *testing.T) {
	q := New(3)

	m1 := NewText("+15550100", "first")
	m2 := NewText("+15550100", "second")
	q.Enqueue(m1)
	q.Enqueue(m2)

	head, _ := q.Dequeue()
	q.PushFront(head)

	got, _ := q.Dequeue()
	if got.ID != m1.ID {
		t.Errorf("PushFront should restore the head, got %s", got.ID)
	}
	if got.Attempts != 0 {
		t.Errorf("PushFront must not count an attempt, got %d", got.Attempts)
	}
}

func TestRequeueExhaustsAttempts(t *testing.T) {
	q := New(3)

	m := NewDocument("+15550100", []byte("pdf"), "invoice.pdf", "Invoice")

	if !q.Requeue(m) {
		t.Fatal("First requeue should succeed")
	}
	if m.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", m.Attempts)
	}

	q.Dequeue()
	if !q.Requeue(m) {
		t.Fatal("Second requeue should succeed")
	}

	q.Dequeue()
	if q.Requeue(m) {
		t.Error("Third requeue should report exhaustion")
	}
	if q.Len() != 0 {
		t.Errorf("Exhausted message must not remain queued, len %d", q.Len())
	}
}

func TestRequeueGoesToTail(t *testing.T) {
	q := New(5)

	m1 := NewText("+15550100", "first")
	m2 := NewText("+15550100", "second")
	q.Enqueue(m1)
	q.Enqueue(m2)

	head, _ := q.Dequeue()
	if !q.Requeue(head) {
		t.Fatal("Requeue should succeed")
	}

	got, _ := q.Dequeue()
	if got.ID != m2.ID {
		t.Errorf("Requeued message must go to the tail, head is %s", got.ID)
	}
}

func TestMessageConstructors(t *testing.T) {
	text := NewText("+15550100", "hello")
	if text.Kind != KindText || text.ID == "" || text.EnqueuedAt.IsZero() {
		t.Errorf("NewText produced incomplete message: %+v", text)
	}

	doc := NewDocument("+15550100", []byte{1, 2}, "a.pdf", "cap")
	if doc.Kind != KindDocument || doc.Filename != "a.pdf" {
		t.Errorf("NewDocument produced incomplete message: %+v", doc)
	}
}
