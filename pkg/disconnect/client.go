package disconnect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
)

const (
	// DefaultPort is the well-known RADIUS Dynamic Authorization port
	// (RFC 5176).
	DefaultPort = 3799

	// DefaultTimeout bounds the Disconnect-Request round-trip.
	DefaultTimeout = 3 * time.Second
)

// ErrIncomplete marks a disconnect request missing mandatory fields.
// This is a caller bug, not an operational failure; nothing is sent.
var ErrIncomplete = errors.New("incomplete disconnect request")

// Outcome is the wire-level result of a Disconnect-Request.
type Outcome int

const (
	// OutcomeRejected covers an explicit NAK, a timeout, and an
	// unreachable NAS. The reconciliation behavior is identical for
	// all three, so they are not distinguished.
	OutcomeRejected Outcome = iota

	// OutcomeAcked means the NAS confirmed the disconnect.
	OutcomeAcked

	// OutcomeSimulated means no packet was sent; a simulated transport
	// answered deterministically.
	OutcomeSimulated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeSimulated:
		return "simulated"
	default:
		return "rejected-or-timeout"
	}
}

// Request carries the session attributes for one Disconnect-Request.
// All four fields are mandatory.
type Request struct {
	Username   string
	SessionID  string
	NASAddress string
	FramedIP   string
}

// Validate reports every missing mandatory field at once. A framed IP
// that is present but not IPv4 is a caller bug too, and fails here so
// no resolution or wire work happens on its behalf.
func (r *Request) Validate() error {
	var missing []string
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.SessionID == "" {
		missing = append(missing, "session id")
	}
	if r.NASAddress == "" {
		missing = append(missing, "nas address")
	}
	if r.FramedIP == "" {
		missing = append(missing, "framed ip")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if ip := net.ParseIP(r.FramedIP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: framed ip %q is not a valid IPv4 address", ErrIncomplete, r.FramedIP)
	}
	return nil
}

// Transport sends one Disconnect-Request and reports the outcome.
// Implementations must bound the wait; a single attempt, no retries.
type Transport interface {
	Send(ctx context.Context, nasAddress string, secret []byte, req Request) (Outcome, error)
}

// UDPTransport sends real RFC 5176 Disconnect-Request packets over UDP.
type UDPTransport struct {
	Port    int           // defaults to DefaultPort
	Timeout time.Duration // defaults to DefaultTimeout
	Logger  *zap.Logger
}

// NewUDPTransport creates a UDP transport with default port and timeout.
func NewUDPTransport(logger *zap.Logger) *UDPTransport {
	return &UDPTransport{
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
		Logger:  logger,
	}
}

// Send builds a Disconnect-Request authenticated with the NAS secret,
// sends it to nasAddress, and waits for ACK/NAK up to the timeout.
func (t *UDPTransport) Send(ctx context.Context, nasAddress string, secret []byte, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return OutcomeRejected, err
	}

	packet := radius.New(radius.CodeDisconnectRequest, secret)
	rfc2865.UserName_SetString(packet, req.Username)
	rfc2866.AcctSessionID_SetString(packet, req.SessionID)
	rfc2865.FramedIPAddress_Set(packet, net.ParseIP(req.FramedIP).To4())

	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	addr := fmt.Sprintf("%s:%d", nasAddress, port)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := radius.Exchange(reqCtx, packet, addr)
	if err != nil {
		// Timeout and unreachable are indistinguishable from a NAK
		// downstream; log the detail at the boundary and move on.
		if t.Logger != nil {
			t.Logger.Warn("Disconnect-Request got no answer",
				zap.String("nas", addr),
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
		}
		return OutcomeRejected, nil
	}

	if response.Code == radius.CodeDisconnectACK {
		return OutcomeAcked, nil
	}

	if t.Logger != nil {
		t.Logger.Info("Disconnect-Request rejected by NAS",
			zap.String("nas", addr),
			zap.String("session_id", req.SessionID),
			zap.Uint8("code", uint8(response.Code)),
		)
	}
	return OutcomeRejected, nil
}
