// Package depot implements the output serializer for the reactor: a FIFO
// queue of pending writes (Mail) drained by one dedicated consumer (the
// Mailman), which serialises all output for a connection.
package depot

import (
	"log/slog"
)

// Destination is anything the Mailman can write a Mail's payload to and
// then either resume reading from or close. *reactor.Session implements it.
type Destination interface {
	Write(p []byte) (int, error)
	Resume()
	Close() error
}

// Mail is one pending outbound write, created by a task and consumed
// exactly once by the Mailman.
type Mail struct {
	Dest       Destination
	Payload    []byte
	CloseAfter bool // true for the graceful-logout response
}

// Queue is the FIFO depot. Mails destined for the same connection are
// delivered in enqueue order; order across connections is unspecified.
type Queue struct {
	mails chan *Mail
}

// NewQueue creates a depot queue with the given buffer capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{mails: make(chan *Mail, capacity)}
}

// Enqueue submits mail for delivery. The destination MUST already be in a
// read-disabled state; the Mailman re-enables it after writing.
func (q *Queue) Enqueue(mail *Mail) {
	q.mails <- mail
}

// Mailman is the single consumer draining a Queue.
type Mailman struct {
	queue  *Queue
	logger *slog.Logger
	done   chan struct{}
}

// NewMailman creates a Mailman bound to queue.
func NewMailman(queue *Queue, logger *slog.Logger) *Mailman {
	return &Mailman{queue: queue, logger: logger, done: make(chan struct{})}
}

// Run drains the queue until Stop is called. It must be launched as a
// goroutine.
func (m *Mailman) Run() {
	for {
		select {
		case mail := <-m.queue.mails:
			m.deliver(mail)
		case <-m.done:
			return
		}
	}
}

// Stop signals the Mailman to shut down after its current mail, if any.
func (m *Mailman) Stop() { close(m.done) }

func (m *Mailman) deliver(mail *Mail) {
	if err := writeAll(mail.Dest, mail.Payload); err != nil {
		if m.logger != nil {
			m.logger.Warn("mailman: write failed", "error", err)
		}
		_ = mail.Dest.Close()
		return
	}

	if mail.CloseAfter {
		_ = mail.Dest.Close()
		return
	}
	mail.Dest.Resume()
}

// writeAll retries until every byte of p is written or an error occurs.
func writeAll(dest Destination, p []byte) error {
	for len(p) > 0 {
		n, err := dest.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
