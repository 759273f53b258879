package main

import (
	"crypto/rsa"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wildernesslabs/meadowd/internal/api"
	"github.com/wildernesslabs/meadowd/internal/apply"
	"github.com/wildernesslabs/meadowd/internal/authcrypto"
	"github.com/wildernesslabs/meadowd/internal/config"
	"github.com/wildernesslabs/meadowd/internal/events"
	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/service"
	"github.com/wildernesslabs/meadowd/internal/store"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meadowd",
	Short: "meadowd - on-device update daemon for Meadow gateways",
	Long: `meadowd authenticates against the cloud auth service, subscribes to
update announcements over MQTT, and applies downloaded packages to the
application it supervises.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"meadowd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	logging.Init(logging.Config{
		Level:      logging.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the update daemon",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().String("settings", "/etc/meadow.conf", "Path to the settings file")
	runCmd.Flags().String("machine-id", "/etc/machine-id", "Path to the machine id file used as the device id")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := logging.WithComponent("main")

	settingsPath, _ := cmd.Flags().GetString("settings")
	machineIDPath, _ := cmd.Flags().GetString("machine-id")

	settings, err := config.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	config.ApplyEnvOverrides(settings)

	deviceID, err := readMachineID(machineIDPath)
	if err != nil {
		return fmt.Errorf("read machine id: %w", err)
	}

	key, err := loadPrivateKey(settings)
	if err != nil {
		return fmt.Errorf("load private key: %w", err)
	}

	st, err := store.Open(settings.StoreRoot)
	if err != nil {
		return fmt.Errorf("open update store: %w", err)
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	svc := service.New(settings, st, key, deviceID, eventBroker)
	svc.Start()

	applyEngine := apply.New(st, settings)
	_ = applyEngine // exported for a future mutating handler; not wired into the HTTP surface (spec scope)

	collector := telemetry.NewCollector(st)
	collector.Start()

	publicKeyPEM := ""
	if key != nil {
		pemBytes, err := authcrypto.PublicKeyPEM(key)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to encode public key")
		} else {
			publicKeyPEM = string(pemBytes)
		}
	}

	apiServer := api.New(settings.StoreRoot, st, svc, deviceID, Version, publicKeyPEM)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", settings.HealthAddr).Msg("operability HTTP surface listening")
		if err := apiServer.Start(settings.HealthAddr); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Str("device_id", deviceID).Msg("meadowd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("operability server failed")
	}

	collector.Stop()
	svc.Stop()
	eventBroker.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}

func readMachineID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// loadPrivateKey loads the device's RSA key when authentication is enabled.
// With authentication disabled the daemon never calls device-login, so no
// key is required and nil is returned.
func loadPrivateKey(settings *types.Settings) (*rsa.PrivateKey, error) {
	if !settings.UseAuthentication {
		return nil, nil
	}
	return authcrypto.LoadPrivateKey(settings.SSHKeyPath)
}
