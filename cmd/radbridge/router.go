package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spotwall/radbridge/pkg/mikrotik"
	"github.com/spotwall/radbridge/pkg/store"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Manage the control-plane device configuration",
}

var routerSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace the active device configuration",
	RunE:  runRouterSet,
}

var routerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active device configuration",
	RunE:  runRouterShow,
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Operate on live hotspot sessions",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active hotspot hosts",
	RunE:  runHostsList,
}

var hostsKickCmd = &cobra.Command{
	Use:   "kick <id>...",
	Short: "Remove active hosts from the device",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHostsKick,
}

var hostsBindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Create an IP binding for each matching active host",
	RunE:  runHostsBind,
}

var leasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "Operate on DHCP leases",
}

var leasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List DHCP leases",
	RunE:  runLeasesList,
}

var leasesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a lease and promote it to static",
	RunE:  runLeasesAdd,
}

var leasesSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Update a lease",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeasesSet,
}

var leasesStaticCmd = &cobra.Command{
	Use:   "static <id>",
	Short: "Promote a dynamic lease to static",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeasesStatic,
}

var leasesRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove leases",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLeasesRemove,
}

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Operate on hotspot IP bindings",
}

var bindingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List IP bindings",
	RunE:  runBindingsList,
}

var bindingsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an IP binding",
	RunE:  runBindingsAdd,
}

var bindingsRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove IP bindings",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBindingsRemove,
}

var (
	routerHost     string
	routerPort     int
	routerUsername string
	routerPassword string
	routerTLS      bool

	searchTerm string

	hostsBindType  string
	bindingAddType string

	leaseAddress string
	leaseMAC     string
	leaseServer  string
	leaseComment string

	bindingMAC     string
	bindingAddress string
	bindingTo      string
	bindingServer  string
	bindingComment string
)

func init() {
	routerCmd.AddCommand(routerSetCmd)
	routerCmd.AddCommand(routerShowCmd)
	routerSetCmd.Flags().StringVar(&routerHost, "host", "", "Device host")
	routerSetCmd.Flags().IntVar(&routerPort, "port", 0, "API port (default 8728, 8729 with TLS)")
	routerSetCmd.Flags().StringVar(&routerUsername, "username", "", "API username")
	routerSetCmd.Flags().StringVar(&routerPassword, "password", "", "API password")
	routerSetCmd.Flags().BoolVar(&routerTLS, "tls", false, "Use API-TLS")
	routerSetCmd.MarkFlagRequired("host")
	routerSetCmd.MarkFlagRequired("username")
	routerSetCmd.MarkFlagRequired("password")

	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsKickCmd)
	hostsCmd.AddCommand(hostsBindCmd)
	hostsListCmd.Flags().StringVar(&searchTerm, "search", "", "Filter substring")
	hostsBindCmd.Flags().StringVar(&searchTerm, "search", "", "Filter substring")
	hostsBindCmd.Flags().StringVar(&hostsBindType, "type", "bypassed", "Binding type (regular, bypassed, blocked)")

	leasesCmd.AddCommand(leasesListCmd)
	leasesCmd.AddCommand(leasesAddCmd)
	leasesCmd.AddCommand(leasesSetCmd)
	leasesCmd.AddCommand(leasesStaticCmd)
	leasesCmd.AddCommand(leasesRemoveCmd)
	leasesListCmd.Flags().StringVar(&searchTerm, "search", "", "Filter substring")
	leasesAddCmd.Flags().StringVar(&leaseAddress, "address", "", "IP address")
	leasesAddCmd.Flags().StringVar(&leaseMAC, "mac", "", "MAC address")
	leasesAddCmd.Flags().StringVar(&leaseServer, "server", "", "DHCP server scope")
	leasesAddCmd.Flags().StringVar(&leaseComment, "comment", "", "Comment")
	leasesAddCmd.MarkFlagRequired("address")
	leasesAddCmd.MarkFlagRequired("mac")
	leasesSetCmd.Flags().StringVar(&leaseAddress, "address", "", "IP address")
	leasesSetCmd.Flags().StringVar(&leaseMAC, "mac", "", "MAC address")
	leasesSetCmd.Flags().StringVar(&leaseServer, "server", "", "DHCP server scope")
	leasesSetCmd.Flags().StringVar(&leaseComment, "comment", "", "Comment")

	bindingsCmd.AddCommand(bindingsListCmd)
	bindingsCmd.AddCommand(bindingsAddCmd)
	bindingsCmd.AddCommand(bindingsRemoveCmd)
	bindingsListCmd.Flags().StringVar(&searchTerm, "search", "", "Filter substring")
	bindingsAddCmd.Flags().StringVar(&bindingMAC, "mac", "", "MAC address")
	bindingsAddCmd.Flags().StringVar(&bindingAddress, "address", "", "IP address")
	bindingsAddCmd.Flags().StringVar(&bindingTo, "to", "", "Translate-to address")
	bindingsAddCmd.Flags().StringVar(&bindingServer, "server", "", "Hotspot server scope")
	bindingsAddCmd.Flags().StringVar(&bindingAddType, "type", "regular", "Binding type (regular, bypassed, blocked)")
	bindingsAddCmd.Flags().StringVar(&bindingComment, "comment", "", "Comment")
}

func runRouterSet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cipher, err := a.cipher()
	if err != nil {
		return err
	}
	encrypted, err := cipher.Encrypt(routerPassword)
	if err != nil {
		return err
	}

	err = a.store.SaveRouterConfig(cmd.Context(), &store.RouterConfig{
		Host:     routerHost,
		Port:     routerPort,
		Username: routerUsername,
		Password: encrypted,
		UseTLS:   routerTLS,
	})
	if err != nil {
		return err
	}
	fmt.Printf("saved router config for %s\n", routerHost)
	return nil
}

func runRouterShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.store.ActiveRouterConfig(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("host=%s port=%d username=%s tls=%v\n",
		cfg.Host, cfg.Port, cfg.Username, cfg.UseTLS)
	return nil
}

func runHostsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	hosts, err := b.ListActiveHosts(cmd.Context(), searchTerm)
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-16s %-16s %-18s %-10s %s\n",
		"ID", "USER", "ADDRESS", "MAC", "UPTIME", "COMMENT")
	for _, h := range hosts {
		fmt.Printf("%-6s %-16s %-16s %-18s %-10s %s\n",
			h.ID, h.User, h.Address, h.MACAddress, h.Uptime, h.Comment)
	}
	return nil
}

func runHostsKick(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	removed, err := b.KickActiveHosts(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("removed %d of %d: %w", removed, len(args), err)
	}
	fmt.Printf("removed %d active hosts\n", removed)
	return nil
}

func runHostsBind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}

	hosts, err := b.ListActiveHosts(cmd.Context(), searchTerm)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Println("no matching hosts")
		return nil
	}

	bound, err := b.BindHostsToBinding(cmd.Context(), hosts, mikrotik.BindingType(hostsBindType))
	if err != nil {
		return fmt.Errorf("bound %d of %d: %w", bound, len(hosts), err)
	}
	fmt.Printf("created %d bindings\n", bound)
	return nil
}

func runLeasesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	leases, err := b.ListDHCPLeases(cmd.Context(), searchTerm)
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-16s %-18s %-10s %-8s %s\n",
		"ID", "ADDRESS", "MAC", "STATUS", "DYNAMIC", "COMMENT")
	for _, l := range leases {
		fmt.Printf("%-6s %-16s %-18s %-10s %-8v %s\n",
			l.ID, l.Address, l.MACAddress, l.Status, l.Dynamic, l.Comment)
	}
	return nil
}

func runLeasesAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	lease, err := b.AddDHCPLease(cmd.Context(), mikrotik.Lease{
		Address:    leaseAddress,
		MACAddress: leaseMAC,
		Server:     leaseServer,
		Comment:    leaseComment,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added static lease %s (%s -> %s)\n", lease.ID, lease.MACAddress, lease.Address)
	return nil
}

func runLeasesSet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	err = b.UpdateDHCPLease(cmd.Context(), args[0], mikrotik.Lease{
		Address:    leaseAddress,
		MACAddress: leaseMAC,
		Server:     leaseServer,
		Comment:    leaseComment,
	})
	if err != nil {
		return err
	}
	fmt.Printf("updated lease %s\n", args[0])
	return nil
}

func runLeasesStatic(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	if err := b.MakeLeaseStatic(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("lease %s is now static\n", args[0])
	return nil
}

func runLeasesRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	removed, err := b.RemoveDHCPLeases(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("removed %d of %d: %w", removed, len(args), err)
	}
	fmt.Printf("removed %d leases\n", removed)
	return nil
}

func runBindingsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	bindings, err := b.ListIPBindings(cmd.Context(), searchTerm)
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-18s %-16s %-16s %-10s %s\n",
		"ID", "MAC", "ADDRESS", "TO", "TYPE", "COMMENT")
	for _, bd := range bindings {
		fmt.Printf("%-6s %-18s %-16s %-16s %-10s %s\n",
			bd.ID, bd.MACAddress, bd.Address, bd.ToAddress, bd.Type, bd.Comment)
	}
	return nil
}

func runBindingsAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	binding, err := b.AddIPBinding(cmd.Context(), mikrotik.Binding{
		MACAddress: bindingMAC,
		Address:    bindingAddress,
		ToAddress:  bindingTo,
		Server:     bindingServer,
		Type:       mikrotik.BindingType(bindingAddType),
		Comment:    bindingComment,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added binding %s\n", binding.ID)
	return nil
}

func runBindingsRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.bridge(nil)
	if err != nil {
		return err
	}
	removed, err := b.RemoveIPBindings(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("removed %d of %d: %w", removed, len(args), err)
	}
	fmt.Printf("removed %d bindings\n", removed)
	return nil
}
