package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"bemfarelay/internal/client/config"
	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/logger"
	"bemfarelay/internal/client/netwatch"
	"bemfarelay/internal/client/session"
	"bemfarelay/internal/client/status"
	"bemfarelay/internal/client/tui"
	"bemfarelay/internal/sentry"
	"bemfarelay/internal/storage"
	"bemfarelay/pkg/protocol"
)

var rootCmd = &cobra.Command{
	Use:   "bemfa-relay",
	Short: "Keeps a bemfa cloud switch topic in sync with a local relay",
}

// Version should be injected via ldflags. Default for dev.
var Version = "dev"

var (
	useTUI       bool
	networkIface string
	bindMAC      string
	deviceName   string
)

func Init(version string) {
	if version != "" {
		Version = version
	}
	tui.Version = Version

	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show the terminal status view")
	runCmd.Flags().StringVar(&networkIface, "network-iface", "", "only treat this interface as the uplink")
	bindCmd.Flags().StringVar(&bindMAC, "mac", "", "station MAC used to derive the topic (default: first interface)")
	bindCmd.Flags().StringVar(&deviceName, "name", "bemfa-relay", "device name reported to the app")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(showCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the broker and follow the switch topic",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		if networkIface != "" {
			cfg.Network.Interface = networkIface
		}
		if err := runRelay(cfg, useTUI); err != nil {
			log.Fatalf("Relay error: %v", err)
		}
	},
}

func runRelay(cfg *config.Config, withTUI bool) (err error) {
	logger.SetLevel(cfg.Level())

	lock, err := config.AcquireLock(cfg.Store.Path)
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return multierr.Append(err, lock.Release())
	}
	defer func() {
		err = multierr.Combine(err, store.Close(), lock.Release())
	}()

	if err := sentry.Init(cfg.Sentry.DSN, Version); err != nil {
		logger.Warn("Sentry disabled: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	bus := events.NewBus()
	defer bus.Close()
	logger.SetEventBus(bus)

	transport := session.NewNetTransport(cfg.Broker.DNSServer, cfg.Session.DialTimeout)
	driver := session.NewDriver(cfg.SessionConfig(), transport, store, netwatch.NewInterfaceMonitor(cfg.Network.Interface))
	driver.SetReconnectConfig(cfg.ReconnectConfig())
	driver.SetEventBus(bus)
	driver.SetErrorReporter(sentry.Reporter("session"))
	driver.SetSwitchHandler(func(on bool) {
		logger.Info("Relay switched %s", protocol.SwitchMessage(on))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Status.Addr != "" {
		st := status.NewServer(cfg.Status.Addr, driver)
		st.Follow(ctx, bus)
		st.StartAsync(ctx)
	}

	if !withTUI {
		return ignoreCanceled(driver.Supervise(ctx))
	}

	logger.SetTUIMode(true)
	defer logger.SetTUIMode(false)

	done := make(chan error, 1)
	go func() { done <- driver.Supervise(ctx) }()

	tuiErr := tui.Run(bus, driver, cfg.Status.Addr)
	cancel()
	return multierr.Append(tuiErr, ignoreCanceled(<-done))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var bindCmd = &cobra.Command{
	Use:   "bind [token | bind-request-json]",
	Short: "Store the bemfa token and derive the device topic",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := parseBindInput(args[0])
		if err != nil {
			log.Fatalf("Invalid bind input: %v", err)
		}
		mac, err := hardwareAddr(bindMAC, net.Interfaces)
		if err != nil {
			log.Fatalf("Cannot determine MAC address: %v", err)
		}

		store := openStore()
		defer store.Close()

		resp, err := bind(store, req, mac, deviceName)
		if err != nil {
			log.Fatalf("Bind failed: %v", err)
		}
		out, _ := json.Marshal(resp)
		fmt.Println(string(out))
	},
}

var topicCmd = &cobra.Command{
	Use:   "topic [mac]",
	Short: "Print the topic derived from a MAC address",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mac, err := net.ParseMAC(args[0])
		if err != nil {
			log.Fatalf("Invalid MAC: %v", err)
		}
		topic, err := protocol.TopicFromMAC(mac)
		if err != nil {
			log.Fatalf("Cannot derive topic: %v", err)
		}
		fmt.Println(topic)
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored credentials",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		values, err := store.Dump(storage.Namespace)
		if err != nil {
			log.Fatalf("Error reading store: %v", err)
		}
		for _, line := range describeStore(values) {
			fmt.Println(line)
		}
	},
}

func openStore() *storage.SQLiteStore {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Error opening store %s: %v", cfg.Store.Path, err)
	}
	return store
}

// describeStore renders stored values with secrets masked.
func describeStore(values map[string]string) []string {
	if len(values) == 0 {
		return []string{"No credentials stored. Run 'bemfa-relay bind <token>' first."}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := values[k]
		switch k {
		case storage.KeyToken:
			v = session.Credentials{Token: v}.MaskedToken()
		case storage.KeyPass:
			v = "********"
		}
		lines = append(lines, fmt.Sprintf("%-12s %s", k, v))
	}
	return lines
}
