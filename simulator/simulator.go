// Package simulator injects network conditions (latency, jitter, packet
// loss, duplication) around a transport.Socket for local testing.
package simulator

import (
	"math/rand"
	"time"

	"netcore/transport"
)

// Config controls which conditions Simulator injects. Zero values disable
// every condition, making Simulator a transparent pass-through.
type Config struct {
	Latency    time.Duration
	Jitter     time.Duration
	LossChance float64 // [0,1)
	DupChance  float64 // [0,1)
}

type pendingSend struct {
	at    time.Time
	addr  transport.Addr
	bytes []byte
}

// Simulator wraps a transport.Socket, delaying and dropping outgoing
// sends according to Config; Recv is left untouched, since a simulated
// socket models conditions on the wire between send and the peer's
// receive, not on this process's own inbound queue.
type Simulator struct {
	socket transport.Socket
	config Config
	rng    *rand.Rand
	queue  []pendingSend
}

// New wraps socket with the network conditions cfg describes. seed makes
// the injected jitter/loss/dup decisions reproducible across runs.
func New(socket transport.Socket, cfg Config, seed int64) *Simulator {
	return &Simulator{socket: socket, config: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Send enqueues bytes for delivery after the configured latency plus a
// random jitter offset, dropping it outright (LossChance) or enqueuing
// it twice (DupChance) first.
func (s *Simulator) Send(addr transport.Addr, bytes []byte) error {
	if s.config.LossChance > 0 && s.rng.Float64() < s.config.LossChance {
		return nil
	}

	copies := 1
	if s.config.DupChance > 0 && s.rng.Float64() < s.config.DupChance {
		copies = 2
	}

	delay := s.config.Latency
	if s.config.Jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.config.Jitter)))
	}
	at := time.Now().Add(delay)

	for i := 0; i < copies; i++ {
		buf := make([]byte, len(bytes))
		copy(buf, bytes)
		s.queue = append(s.queue, pendingSend{at: at, addr: addr, bytes: buf})
	}
	return nil
}

// Flush dispatches every queued send whose delay has elapsed to the
// underlying socket. A caller drives this once per tick alongside Recv.
func (s *Simulator) Flush() error {
	now := time.Now()
	remaining := s.queue[:0]
	for _, p := range s.queue {
		if now.Before(p.at) {
			remaining = append(remaining, p)
			continue
		}
		if err := s.socket.Send(p.addr, p.bytes); err != nil {
			return err
		}
	}
	s.queue = remaining
	return nil
}

func (s *Simulator) Recv() (transport.Addr, []byte, bool, error) { return s.socket.Recv() }
func (s *Simulator) Close() error                                { return s.socket.Close() }
func (s *Simulator) LocalAddr() transport.Addr                   { return s.socket.LocalAddr() }
