package fs

import (
	"unicode/utf8"

	"strideos/kernel/excl"
)

const (
	// MailboxCapacity is the maximum number of queued messages.
	MailboxCapacity = 16
	// MaxMessageBytes is the longest message a mailbox stores; longer
	// payloads are truncated.
	MaxMessageBytes = 256
)

type messageRing struct {
	head  uint8
	tail  uint8
	slots [MailboxCapacity]string
}

func (q *messageRing) len() int { return int(q.head - q.tail) }

func (q *messageRing) push(msg string) bool {
	if q.len() >= MailboxCapacity {
		return false
	}
	q.slots[q.head%MailboxCapacity] = msg
	q.head++
	return true
}

func (q *messageRing) pop() (string, bool) {
	if q.head == q.tail {
		return "", false
	}
	msg := q.slots[q.tail%MailboxCapacity]
	q.slots[q.tail%MailboxCapacity] = ""
	q.tail++
	return msg, true
}

// Mailbox is a bounded FIFO of whole text messages owned by one task.
type Mailbox struct {
	q excl.Cell[messageRing]
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox { return &Mailbox{} }

func (m *Mailbox) Readable() bool { return true }
func (m *Mailbox) Writable() bool { return true }

// Write enqueues buf as one message, truncated to MaxMessageBytes. A full
// mailbox accepts nothing; an empty payload is accepted without queuing.
func (m *Mailbox) Write(buf UserBuffer) (int, error) {
	if m.IsFull() {
		return 0, ErrFull
	}
	payload := buf.Bytes()
	if len(payload) == 0 {
		return 0, nil
	}
	if len(payload) > MaxMessageBytes {
		payload = payload[:MaxMessageBytes]
	}
	if !utf8.Valid(payload) {
		return 0, ErrInvalidText
	}

	q := m.q.Exclusive()
	ok := q.push(string(payload))
	m.q.Release()
	if !ok {
		return 0, ErrFull
	}
	return len(payload), nil
}

// Read dequeues the oldest message and copies as much of it as fits in buf.
// The rest of the message is discarded.
func (m *Mailbox) Read(buf UserBuffer) (int, error) {
	q := m.q.Exclusive()
	msg, ok := q.pop()
	m.q.Release()
	if !ok {
		return 0, ErrEmpty
	}
	return buf.CopyFrom([]byte(msg)), nil
}

func (m *Mailbox) IsFull() bool {
	q := m.q.Exclusive()
	defer m.q.Release()
	return q.len() >= MailboxCapacity
}

func (m *Mailbox) IsEmpty() bool {
	q := m.q.Exclusive()
	defer m.q.Release()
	return q.len() == 0
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	q := m.q.Exclusive()
	defer m.q.Release()
	return q.len()
}

func (m *Mailbox) Retain()  {}
func (m *Mailbox) Release() {}
