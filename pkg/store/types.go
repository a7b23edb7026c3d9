package store

import "time"

// NAS identifies a network access server that terminates subscriber
// sessions. The shared secret authenticates Disconnect-Request packets
// sent to the device.
type NAS struct {
	Address   string // IP or hostname, unique
	Secret    string
	ShortName string
	Type      string
}

// Session is one row of the accounting ledger. A session is online iff
// Stop is nil. Octet counters are carried as decimal strings so that
// unsigned 64-bit values survive JSON and database round-trips intact.
type Session struct {
	SessionID      string
	Username       string
	NASAddress     string
	FramedIP       string
	CallingStation string
	Start          time.Time
	Stop           *time.Time
	InputOctets    string
	OutputOctets   string
	TerminateCause string
}

// Online reports whether the session has no stop record yet.
func (s *Session) Online() bool {
	return s.Stop == nil
}

// RouterConfig is the single active control-plane device configuration.
// Password holds the encrypted credential as stored; callers decrypt it
// through a secrets.Cipher only for the duration of a connection.
type RouterConfig struct {
	Host     string
	Port     int
	Username string
	Password string // encrypted at rest
	UseTLS   bool
}

// Terminate causes written by the admin-facing session operations.
const (
	CauseAdminDisconnect = "Admin-Disconnect"
	CauseAdminReset      = "Admin-Reset"
)
