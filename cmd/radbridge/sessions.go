package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spotwall/radbridge/pkg/disconnect"
	"github.com/spotwall/radbridge/pkg/metrics"
	"github.com/spotwall/radbridge/pkg/store"
	"go.uber.org/zap"
)

var (
	kickSessionID string
	kickUsername  string
	kickNAS       string
	kickFramedIP  string

	sweepMaxAge time.Duration
)

var kickCmd = &cobra.Command{
	Use:   "kick",
	Short: "Disconnect one session and close its accounting row",
	RunE:  runKick,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close accounting rows left open past the maximum session age",
	RunE:  runSweep,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List currently open accounting sessions",
	RunE:  runSessions,
}

var sessionsKickAllCmd = &cobra.Command{
	Use:   "kick-all",
	Short: "Disconnect every open session, one at a time",
	RunE:  runSessionsKickAll,
}

var nasCmd = &cobra.Command{
	Use:   "nas",
	Short: "Manage NAS devices",
}

var nasAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a NAS device",
	RunE:  runNASAdd,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve metrics and sweep stale sessions on an interval",
	RunE:  runDaemon,
}

var (
	nasAddress   string
	nasSecret    string
	nasShortName string
	nasType      string
)

func init() {
	kickCmd.Flags().StringVar(&kickSessionID, "session-id", "", "Accounting session id")
	kickCmd.Flags().StringVar(&kickUsername, "username", "", "Session owner")
	kickCmd.Flags().StringVar(&kickNAS, "nas", "", "NAS network address")
	kickCmd.Flags().StringVar(&kickFramedIP, "framed-ip", "", "Assigned framed IP")

	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0,
		"Maximum session age (default from config)")

	sessionsCmd.AddCommand(sessionsKickAllCmd)

	nasCmd.AddCommand(nasAddCmd)
	nasAddCmd.Flags().StringVar(&nasAddress, "address", "", "NAS network address")
	nasAddCmd.Flags().StringVar(&nasSecret, "secret", "", "Shared secret")
	nasAddCmd.Flags().StringVar(&nasShortName, "name", "", "Display name")
	nasAddCmd.Flags().StringVar(&nasType, "type", "mikrotik", "Device class")
	nasAddCmd.MarkFlagRequired("address")
	nasAddCmd.MarkFlagRequired("secret")
}

func runKick(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.reconciler(nil)
	if err != nil {
		return err
	}

	result, err := r.Kick(cmd.Context(), disconnect.Request{
		Username:   kickUsername,
		SessionID:  kickSessionID,
		NASAddress: kickNAS,
		FramedIP:   kickFramedIP,
	})
	if err != nil {
		return err
	}

	fmt.Printf("kick %s/%s: success=%v reason=%s rows_closed=%d\n",
		kickUsername, kickSessionID, result.Success, result.Reason, result.Closed)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sw, err := a.sweeper(nil)
	if err != nil {
		return err
	}

	maxAge := sweepMaxAge
	if maxAge == 0 {
		maxAge = a.cfg.Sweep.MaxAge.Std()
	}

	closed, err := sw.Sweep(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	fmt.Printf("closed %d stale sessions (max age %s)\n", closed, maxAge)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.store.ListOpenSessions(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %-16s %-16s %-16s %s\n",
		"SESSION", "USERNAME", "NAS", "FRAMED-IP", "STARTED")
	for _, s := range sessions {
		fmt.Printf("%-20s %-16s %-16s %-16s %s\n",
			s.SessionID, s.Username, s.NASAddress, s.FramedIP,
			s.Start.Format(time.RFC3339))
	}
	return nil
}

func runSessionsKickAll(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.store.ListOpenSessions(cmd.Context())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no open sessions")
		return nil
	}

	r, err := a.reconciler(nil)
	if err != nil {
		return err
	}

	reqs := make([]disconnect.Request, 0, len(sessions))
	for _, s := range sessions {
		reqs = append(reqs, disconnect.Request{
			Username:   s.Username,
			SessionID:  s.SessionID,
			NASAddress: s.NASAddress,
			FramedIP:   s.FramedIP,
		})
	}

	result := r.KickAll(cmd.Context(), reqs)
	fmt.Printf("attempted=%d confirmed=%d rows_closed=%d errors=%d\n",
		result.Attempted, result.Succeeded, result.Closed, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  %v\n", e)
	}
	return nil
}

func runNASAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	err = a.store.SaveNAS(cmd.Context(), &store.NAS{
		Address:   nasAddress,
		Secret:    nasSecret,
		ShortName: nasShortName,
		Type:      nasType,
	})
	if err != nil {
		return err
	}
	fmt.Printf("saved nas %s\n", nasAddress)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	m := metrics.New(prometheus.DefaultRegisterer)
	sw, err := a.sweeper(m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		a.logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	go func() {
		if err := metrics.Serve(a.cfg.Metrics.Listen, a.logger); err != nil {
			a.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	interval := a.cfg.Sweep.Interval.Std()
	if interval <= 0 {
		interval = time.Hour
	}

	a.logger.Info("Starting radbridge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Duration("sweep_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("radbridge stopped")
			return nil
		case <-ticker.C:
			if _, err := sw.Sweep(ctx, a.cfg.Sweep.MaxAge.Std()); err != nil {
				a.logger.Error("Scheduled sweep failed", zap.Error(err))
			}
		}
	}
}
