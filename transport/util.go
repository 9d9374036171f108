package transport

import (
	"net"
	"time"

	"github.com/rs/xid"
)

// pollDeadline is how far out Recv's non-blocking poll sets its read
// deadline; short enough that a caller looping Recv in a tight tick
// doesn't stall noticeably, long enough not to busy-spin the syscall.
const pollDeadline = time.Millisecond

func deadlineNow() time.Time { return time.Now().Add(pollDeadline) }

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// NewTraceID mints a short sortable correlation id. The connection layer
// prints a fresh one in the debug line it logs for each datagram it
// rejects; the id is not carried into any later processing step.
func NewTraceID() string { return xid.New().String() }
