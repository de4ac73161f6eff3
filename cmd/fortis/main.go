package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Nat1anWasTaken/fortis/internal/bootstrap"
	"github.com/Nat1anWasTaken/fortis/internal/config"
	"github.com/Nat1anWasTaken/fortis/internal/display"
	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		deviceIdx  int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "fortis",
		Short: "Live microphone transcription in your terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath, deviceIdx, logLevel)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to fortis.yaml")
	cmd.Flags().IntVarP(&deviceIdx, "device", "d", -1, "input device index (default: system default)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return cmd
}

func run(configPath string, deviceIdx int, logLevel string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(cfg.Log.Level, "console")

	console := display.NewConsole(os.Stdout)
	reg := prometheus.NewRegistry()

	services, err := bootstrap.Build(cfg, console, logger, reg)
	if err != nil {
		return err
	}
	defer services.Close()

	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	ctx := context.Background()
	devices, err := services.Registry.List(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no input devices found")
	}

	fmt.Println("Available audio devices:")
	for i, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %d. %s\n", marker, i, d.Name)
	}

	var selected domain.DeviceID
	if deviceIdx >= 0 {
		if deviceIdx >= len(devices) {
			return fmt.Errorf("invalid device index %d", deviceIdx)
		}
		selected = devices[deviceIdx].ID
	}

	if err := services.Controller.Start(ctx, selected); err != nil {
		return err
	}
	fmt.Println("\nRecording. Commands: p=pause/resume, d <n>=switch device, q=quit")

	stop := make(chan struct{})
	go console.Follow(services.Transcript, cfg.UI.Refresh(), stop)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	defer close(stop)
	for {
		select {
		case <-sigs:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleCommand(ctx, services, line); done {
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, services *bootstrap.Services, line string) bool {
	controller := services.Controller

	switch {
	case line == "q":
		return true
	case line == "p":
		var err error
		switch controller.State() {
		case domain.SessionStateRecording:
			err = controller.Pause()
		case domain.SessionStatePaused:
			err = controller.Resume()
		case domain.SessionStateError:
			err = controller.Acknowledge()
		default:
			return false
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		}
	case strings.HasPrefix(line, "d"):
		idxStr := strings.TrimSpace(strings.TrimPrefix(line, "d"))
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "usage: d <device index>")
			return false
		}
		devices, err := services.Registry.List(ctx)
		if err != nil || idx < 0 || idx >= len(devices) {
			fmt.Fprintln(os.Stderr, "invalid device index")
			return false
		}
		if err := controller.SelectDevice(ctx, devices[idx].ID); err != nil {
			fmt.Fprintf(os.Stderr, "device switch failed: %v\n", err)
		}
	}
	return false
}
