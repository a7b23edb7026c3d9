// Package mikrotik bridges operator actions to a RouterOS device over
// its API control plane: active hotspot hosts, DHCP leases, and IP
// bindings. The device owns all of this state; nothing is cached past
// a single call.
package mikrotik

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-routeros/routeros/v3"
	"github.com/spotwall/radbridge/pkg/metrics"
	"github.com/spotwall/radbridge/pkg/secrets"
	"github.com/spotwall/radbridge/pkg/store"
	"go.uber.org/zap"
)

const (
	// DefaultDialTimeout bounds the control-plane connect.
	DefaultDialTimeout = 5 * time.Second

	defaultAPIPort    = 8728
	defaultAPITLSPort = 8729
)

var (
	// ErrConfigMissing is returned when no router configuration has
	// been saved. Requires administrative action, not a retry.
	ErrConfigMissing = errors.New("router is not configured")

	// ErrConnect covers dial failures: unreachable host, rejected
	// credentials, connect timeout.
	ErrConnect = errors.New("router connection failed")

	// ErrNoTargets is returned for batch operations with an empty id
	// list; a caller bug, rejected before any I/O.
	ErrNoTargets = errors.New("no target ids given")
)

// ConfigRepository supplies the single active router configuration.
// It is read fresh on every connect so credential rotation takes
// effect without a restart.
type ConfigRepository interface {
	ActiveRouterConfig(ctx context.Context) (*store.RouterConfig, error)
}

// Conn is one live control-plane connection.
type Conn interface {
	Run(words ...string) (*routeros.Reply, error)
	Close()
}

// DialFunc opens a control-plane connection. Injectable so tests can
// substitute a scripted device.
type DialFunc func(cfg *store.RouterConfig, password string, timeout time.Duration) (Conn, error)

type apiConn struct {
	cli *routeros.Client
}

func (c *apiConn) Run(words ...string) (*routeros.Reply, error) {
	return c.cli.Run(words...)
}

func (c *apiConn) Close() {
	c.cli.Close()
}

func defaultDial(cfg *store.RouterConfig, password string, timeout time.Duration) (Conn, error) {
	port := cfg.Port
	if port == 0 {
		if cfg.UseTLS {
			port = defaultAPITLSPort
		} else {
			port = defaultAPIPort
		}
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	var (
		cli *routeros.Client
		err error
	)
	if cfg.UseTLS {
		// Routers ship self-signed certificates.
		tlsCfg := &tls.Config{InsecureSkipVerify: true}
		cli, err = routeros.DialTLSTimeout(addr, cfg.Username, password, tlsCfg, timeout)
	} else {
		cli, err = routeros.DialTimeout(addr, cfg.Username, password, timeout)
	}
	if err != nil {
		return nil, err
	}
	return &apiConn{cli: cli}, nil
}

// Bridge executes operator actions against the configured device.
// Every operation acquires its own connection and releases it before
// returning; connections are never pooled. Call volume is operator
// driven, so correctness wins over throughput.
type Bridge struct {
	repo    ConfigRepository
	cipher  secrets.Cipher
	dial    DialFunc
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialFunc replaces the real API dialer.
func WithDialFunc(d DialFunc) Option {
	return func(b *Bridge) { b.dial = d }
}

// WithDialTimeout overrides the connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// NewBridge creates a bridge. metrics may be nil.
func NewBridge(repo ConfigRepository, cipher secrets.Cipher, logger *zap.Logger, m *metrics.Metrics, opts ...Option) (*Bridge, error) {
	if repo == nil {
		return nil, fmt.Errorf("config repository required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("credential cipher required")
	}
	b := &Bridge{
		repo:    repo,
		cipher:  cipher,
		dial:    defaultDial,
		timeout: DefaultDialTimeout,
		logger:  logger,
		metrics: m,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// connect reads the active config, decrypts the credential, and dials.
// The three failure classes stay distinguishable for the operator:
// missing config, credential decryption, and connection.
func (b *Bridge) connect(ctx context.Context) (Conn, error) {
	cfg, err := b.repo.ActiveRouterConfig(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoRouterConfig) {
			return nil, fmt.Errorf("%w: save a device configuration first", ErrConfigMissing)
		}
		return nil, fmt.Errorf("failed to load router config: %w", err)
	}

	password, err := b.cipher.Decrypt(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("router credential for %s: %w", cfg.Host, err)
	}

	conn, err := b.dial(cfg, password, b.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, cfg.Host, err)
	}
	return conn, nil
}

func (b *Bridge) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.metrics.RecordBridgeCommand(op, result, time.Since(start).Seconds())
}

// ListActiveHosts fetches live hotspot sessions, optionally filtered by
// a case-insensitive substring across all fields.
func (b *Bridge) ListActiveHosts(ctx context.Context, search string) (hosts []ActiveHost, err error) {
	start := time.Now()
	defer func() { b.observe("active.list", start, err) }()

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reply, err := conn.Run("/ip/hotspot/active/print")
	if err != nil {
		return nil, fmt.Errorf("failed to list active hosts: %w", err)
	}

	for _, re := range reply.Re {
		h := activeHostFrom(re.Map)
		if matchAny(search, h.ID, h.Server, h.User, h.Address, h.MACAddress, h.Uptime, h.Comment) {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

// KickActiveHosts removes the listed sessions one by one; the API has
// no batch removal. The first failure aborts the rest and the returned
// count says how many were removed before it: all-or-nothing-so-far,
// not transactional.
func (b *Bridge) KickActiveHosts(ctx context.Context, ids []string) (removed int, err error) {
	start := time.Now()
	defer func() { b.observe("active.kick", start, err) }()

	if len(ids) == 0 {
		return 0, ErrNoTargets
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	for _, id := range ids {
		if _, err := conn.Run("/ip/hotspot/active/remove", "=.id="+id); err != nil {
			return removed, fmt.Errorf("failed to remove active host %s after %d of %d: %w",
				id, removed, len(ids), err)
		}
		removed++
	}

	b.logger.Info("Kicked active hosts", zap.Int("count", removed))
	return removed, nil
}

// ListDHCPLeases fetches DHCP leases with the same filtering as
// ListActiveHosts.
func (b *Bridge) ListDHCPLeases(ctx context.Context, search string) (leases []Lease, err error) {
	start := time.Now()
	defer func() { b.observe("lease.list", start, err) }()

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reply, err := conn.Run("/ip/dhcp-server/lease/print")
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}

	for _, re := range reply.Re {
		l := leaseFrom(re.Map)
		if matchAny(search, l.ID, l.Address, l.MACAddress, l.Server, l.HostName, l.Status, l.Comment) {
			leases = append(leases, l)
		}
	}
	return leases, nil
}

// AddDHCPLease creates a lease and promotes it to static. The device's
// add alone does not guarantee the entry persists as static, so the
// lease is read back by MAC and address and then promoted.
func (b *Bridge) AddDHCPLease(ctx context.Context, lease Lease) (created *Lease, err error) {
	start := time.Now()
	defer func() { b.observe("lease.add", start, err) }()

	if lease.Address == "" || lease.MACAddress == "" {
		return nil, fmt.Errorf("lease requires address and mac address")
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	words := []string{
		"/ip/dhcp-server/lease/add",
		"=address=" + lease.Address,
		"=mac-address=" + lease.MACAddress,
		"=comment=" + EncodeComment(lease.Comment),
	}
	if lease.Server != "" {
		words = append(words, "=server="+lease.Server)
	}
	if _, err := conn.Run(words...); err != nil {
		return nil, fmt.Errorf("failed to add lease: %w", err)
	}

	reply, err := conn.Run("/ip/dhcp-server/lease/print",
		"?address="+lease.Address,
		"?mac-address="+lease.MACAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lease: %w", err)
	}
	if len(reply.Re) == 0 {
		return nil, fmt.Errorf("lease %s/%s not found after add", lease.MACAddress, lease.Address)
	}

	found := leaseFrom(reply.Re[0].Map)
	if _, err := conn.Run("/ip/dhcp-server/lease/make-static", "=.id="+found.ID); err != nil {
		return nil, fmt.Errorf("failed to make lease %s static: %w", found.ID, err)
	}
	found.Dynamic = false

	b.logger.Info("Added static lease",
		zap.String("mac", found.MACAddress),
		zap.String("address", found.Address),
	)
	return &found, nil
}

// UpdateDHCPLease rewrites the mutable fields of an existing lease.
func (b *Bridge) UpdateDHCPLease(ctx context.Context, id string, lease Lease) (err error) {
	start := time.Now()
	defer func() { b.observe("lease.update", start, err) }()

	if id == "" {
		return fmt.Errorf("lease id required")
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	words := []string{
		"/ip/dhcp-server/lease/set",
		"=.id=" + id,
		"=comment=" + EncodeComment(lease.Comment),
	}
	if lease.Address != "" {
		words = append(words, "=address="+lease.Address)
	}
	if lease.MACAddress != "" {
		words = append(words, "=mac-address="+lease.MACAddress)
	}
	if lease.Server != "" {
		words = append(words, "=server="+lease.Server)
	}
	if _, err := conn.Run(words...); err != nil {
		return fmt.Errorf("failed to update lease %s: %w", id, err)
	}
	return nil
}

// MakeLeaseStatic promotes a dynamic lease to a static one.
func (b *Bridge) MakeLeaseStatic(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { b.observe("lease.make_static", start, err) }()

	if id == "" {
		return fmt.Errorf("lease id required")
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Run("/ip/dhcp-server/lease/make-static", "=.id="+id); err != nil {
		return fmt.Errorf("failed to make lease %s static: %w", id, err)
	}
	return nil
}

// RemoveDHCPLeases removes leases sequentially, first failure aborts.
func (b *Bridge) RemoveDHCPLeases(ctx context.Context, ids []string) (removed int, err error) {
	start := time.Now()
	defer func() { b.observe("lease.remove", start, err) }()

	if len(ids) == 0 {
		return 0, ErrNoTargets
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	for _, id := range ids {
		if _, err := conn.Run("/ip/dhcp-server/lease/remove", "=.id="+id); err != nil {
			return removed, fmt.Errorf("failed to remove lease %s after %d of %d: %w",
				id, removed, len(ids), err)
		}
		removed++
	}
	return removed, nil
}

// ListIPBindings fetches hotspot IP bindings.
func (b *Bridge) ListIPBindings(ctx context.Context, search string) (bindings []Binding, err error) {
	start := time.Now()
	defer func() { b.observe("binding.list", start, err) }()

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reply, err := conn.Run("/ip/hotspot/ip-binding/print")
	if err != nil {
		return nil, fmt.Errorf("failed to list ip bindings: %w", err)
	}

	for _, re := range reply.Re {
		bd := bindingFrom(re.Map)
		if matchAny(search, bd.ID, bd.MACAddress, bd.Address, bd.ToAddress, bd.Server, string(bd.Type), bd.Comment) {
			bindings = append(bindings, bd)
		}
	}
	return bindings, nil
}

// AddIPBinding creates one binding and returns it with the device id.
func (b *Bridge) AddIPBinding(ctx context.Context, binding Binding) (created *Binding, err error) {
	start := time.Now()
	defer func() { b.observe("binding.add", start, err) }()

	if binding.MACAddress == "" && binding.Address == "" {
		return nil, fmt.Errorf("binding requires a mac address or an address")
	}
	if binding.Type == "" {
		binding.Type = BindingRegular
	}
	if !binding.Type.Valid() {
		return nil, fmt.Errorf("invalid binding type %q", binding.Type)
	}
	if binding.Server == "" {
		binding.Server = "all"
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	id, err := addBinding(conn, binding)
	if err != nil {
		return nil, err
	}
	binding.ID = id

	b.logger.Info("Added ip binding",
		zap.String("mac", binding.MACAddress),
		zap.String("address", binding.Address),
		zap.String("type", string(binding.Type)),
	)
	return &binding, nil
}

func addBinding(conn Conn, binding Binding) (string, error) {
	words := []string{
		"/ip/hotspot/ip-binding/add",
		"=type=" + string(binding.Type),
		"=server=" + binding.Server,
		"=comment=" + EncodeComment(binding.Comment),
	}
	if binding.MACAddress != "" {
		words = append(words, "=mac-address="+binding.MACAddress)
	}
	if binding.Address != "" {
		words = append(words, "=address="+binding.Address)
	}
	if binding.ToAddress != "" {
		words = append(words, "=to-address="+binding.ToAddress)
	}

	reply, err := conn.Run(words...)
	if err != nil {
		return "", fmt.Errorf("failed to add ip binding: %w", err)
	}
	if reply.Done != nil {
		return reply.Done.Map["ret"], nil
	}
	return "", nil
}

// RemoveIPBindings removes bindings sequentially, first failure aborts.
func (b *Bridge) RemoveIPBindings(ctx context.Context, ids []string) (removed int, err error) {
	start := time.Now()
	defer func() { b.observe("binding.remove", start, err) }()

	if len(ids) == 0 {
		return 0, ErrNoTargets
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	for _, id := range ids {
		if _, err := conn.Run("/ip/hotspot/ip-binding/remove", "=.id="+id); err != nil {
			return removed, fmt.Errorf("failed to remove ip binding %s after %d of %d: %w",
				id, removed, len(ids), err)
		}
		removed++
	}
	return removed, nil
}

// BindHostsToBinding creates one binding per active host, defaulting
// the server scope to the wildcard and the comment to the host's user
// label or a timestamped fallback. Sequential, first failure aborts and
// the count reports bindings created before it.
func (b *Bridge) BindHostsToBinding(ctx context.Context, hosts []ActiveHost, kind BindingType) (bound int, err error) {
	start := time.Now()
	defer func() { b.observe("binding.bind_hosts", start, err) }()

	if len(hosts) == 0 {
		return 0, ErrNoTargets
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("invalid binding type %q", kind)
	}

	conn, err := b.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	for _, host := range hosts {
		comment := host.User
		if comment == "" {
			comment = "bound " + time.Now().Format("2006-01-02 15:04:05")
		}
		binding := Binding{
			MACAddress: host.MACAddress,
			Address:    host.Address,
			Server:     "all",
			Type:       kind,
			Comment:    comment,
		}
		if _, err := addBinding(conn, binding); err != nil {
			return bound, fmt.Errorf("host %s after %d of %d: %w",
				host.MACAddress, bound, len(hosts), err)
		}
		bound++
	}

	b.logger.Info("Bound hosts to bindings",
		zap.Int("count", bound),
		zap.String("type", string(kind)),
	)
	return bound, nil
}
