package disconnect

import (
	"context"
	"sync"
)

// SimulatedTransport performs no network I/O and answers every valid
// request with a fixed outcome. It stands in for the UDP transport in
// sandboxed environments and in tests, so the reconciliation path is
// exercised end-to-end without a NAS on the wire. Selection between
// transports is an injection concern; nothing here inspects the host.
type SimulatedTransport struct {
	// Result is returned for every valid request.
	Result Outcome

	mu   sync.Mutex
	sent []Request
}

// NewSimulatedTransport returns a transport answering OutcomeSimulated.
func NewSimulatedTransport() *SimulatedTransport {
	return &SimulatedTransport{Result: OutcomeSimulated}
}

// Send validates the request like the real transport would, records it,
// and returns the configured outcome.
func (t *SimulatedTransport) Send(_ context.Context, _ string, _ []byte, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return OutcomeRejected, err
	}
	t.mu.Lock()
	t.sent = append(t.sent, req)
	t.mu.Unlock()
	return t.Result, nil
}

// Sent returns a copy of every request accepted so far.
func (t *SimulatedTransport) Sent() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.sent))
	copy(out, t.sent)
	return out
}
