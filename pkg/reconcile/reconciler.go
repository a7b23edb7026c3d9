// Package reconcile coordinates operator-triggered session kicks: it
// drives the RADIUS Disconnect-Request to the NAS and keeps the
// accounting ledger consistent with operator intent regardless of the
// wire outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spotwall/radbridge/pkg/disconnect"
	"github.com/spotwall/radbridge/pkg/metrics"
	"github.com/spotwall/radbridge/pkg/store"
	"go.uber.org/zap"
)

// Directory is the slice of the store the reconciler needs.
type Directory interface {
	FindNAS(ctx context.Context, address string) (*store.NAS, error)
	CloseSession(ctx context.Context, sessionID, username, cause string, stop time.Time) (int64, error)
}

// Reason explains the wire-level side of a kick result.
type Reason string

const (
	ReasonAcked             Reason = "acked"
	ReasonRejectedOrTimeout Reason = "rejected-or-timeout"
	ReasonDeviceUnknown     Reason = "device-unknown"
	ReasonSimulated         Reason = "simulated"
)

// Result reports one kick. Success is true only when the NAS confirmed
// the disconnect; the accounting row is closed in every case, and
// Closed tells whether this call was the one that closed it.
type Result struct {
	Success bool
	Reason  Reason
	Closed  int64
}

// Reconciler resolves NAS secrets, attempts the wire disconnect, and
// unconditionally closes the matching accounting row.
type Reconciler struct {
	dir       Directory
	transport disconnect.Transport
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(dir Directory, transport disconnect.Transport, logger *zap.Logger, m *metrics.Metrics) (*Reconciler, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory store required")
	}
	if transport == nil {
		return nil, fmt.Errorf("disconnect transport required")
	}
	return &Reconciler{
		dir:       dir,
		transport: transport,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Kick disconnects one session. The flow is fixed: validate, resolve
// the NAS, attempt the wire disconnect, then close the accounting row.
// The close always runs after the attempt completes, and runs even when
// the NAS is unknown or unreachable: a stale "online" row after an
// operator kick is a worse failure mode than an unconfirmed disconnect.
func (r *Reconciler) Kick(ctx context.Context, req disconnect.Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	var (
		outcome disconnect.Outcome
		reason  Reason
	)

	nas, err := r.dir.FindNAS(ctx, req.NASAddress)
	switch {
	case errors.Is(err, store.ErrNASNotFound):
		reason = ReasonDeviceUnknown
		r.logger.Warn("No NAS device for session, skipping wire disconnect",
			zap.String("nas", req.NASAddress),
			zap.String("session_id", req.SessionID),
		)
	case err != nil:
		return Result{}, fmt.Errorf("failed to resolve nas %s: %w", req.NASAddress, err)
	default:
		outcome, err = r.transport.Send(ctx, nas.Address, []byte(nas.Secret), req)
		if err != nil {
			// Invalid request surfaced by the transport; nothing was
			// sent and nothing should be closed.
			return Result{}, err
		}
		reason = reasonFor(outcome)
		r.metrics.RecordDisconnect(outcome.String())
	}

	closed, err := r.dir.CloseSession(ctx, req.SessionID, req.Username, store.CauseAdminDisconnect, r.now())
	if err != nil {
		return Result{}, fmt.Errorf("failed to close accounting session %s: %w", req.SessionID, err)
	}

	result := Result{
		Success: reason == ReasonAcked,
		Reason:  reason,
		Closed:  closed,
	}
	r.metrics.RecordKick(string(reason), closed)
	r.logger.Info("Session kick processed",
		zap.String("username", req.Username),
		zap.String("session_id", req.SessionID),
		zap.String("reason", string(reason)),
		zap.Bool("success", result.Success),
		zap.Int64("rows_closed", closed),
	)
	return result, nil
}

func reasonFor(o disconnect.Outcome) Reason {
	switch o {
	case disconnect.OutcomeAcked:
		return ReasonAcked
	case disconnect.OutcomeSimulated:
		return ReasonSimulated
	default:
		return ReasonRejectedOrTimeout
	}
}

// BulkResult aggregates a batch of independent kicks.
type BulkResult struct {
	Attempted int
	Succeeded int   // wire-confirmed disconnects
	Closed    int64 // accounting rows closed
	Errors    []error
}

// KickAll processes kicks sequentially. Item failures are independent;
// a failing item is recorded and the batch continues, unlike the
// fail-fast device-bridge batches.
func (r *Reconciler) KickAll(ctx context.Context, reqs []disconnect.Request) BulkResult {
	batch := uuid.NewString()
	res := BulkResult{Attempted: len(reqs)}

	for _, req := range reqs {
		out, err := r.Kick(ctx, req)
		if err != nil {
			res.Errors = append(res.Errors,
				fmt.Errorf("session %s: %w", req.SessionID, err))
			continue
		}
		if out.Success {
			res.Succeeded++
		}
		res.Closed += out.Closed
	}

	r.logger.Info("Bulk kick complete",
		zap.String("batch_id", batch),
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int64("rows_closed", res.Closed),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}
