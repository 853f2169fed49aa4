// Command ook-gateway receives Nexus-TH temperature/humidity transmissions on
// a GPIO line and publishes stable readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ook-gateway/internal/clock"
	"github.com/sweeney/ook-gateway/internal/config"
	"github.com/sweeney/ook-gateway/internal/decoder"
	"github.com/sweeney/ook-gateway/internal/gpio"
	"github.com/sweeney/ook-gateway/internal/link"
	"github.com/sweeney/ook-gateway/internal/logic"
	"github.com/sweeney/ook-gateway/internal/mqtt"
	"github.com/sweeney/ook-gateway/internal/status"
	"github.com/sweeney/ook-gateway/internal/timesync"
	"github.com/sweeney/ook-gateway/internal/watchdog"
	"github.com/sweeney/ook-gateway/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	if err := run(cfg); err != nil {
		slog.Error("exiting", "err", err, "fatal", logic.IsFatal(err))
		os.Exit(1)
	}
}

// shutdownSignal is the cancellation cause recorded when a signal arrives.
type shutdownSignal struct {
	os.Signal
}

func (s shutdownSignal) Error() string {
	return "received " + s.Signal.String()
}

// signalName returns the reason reported in the SHUTDOWN event.
func signalName(cause error) string {
	var s shutdownSignal
	if errors.As(cause, &s) {
		switch s.Signal {
		case syscall.SIGINT:
			return "SIGINT"
		case syscall.SIGTERM:
			return "SIGTERM"
		}
	}
	return "UNKNOWN"
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			slog.Info("signal received, shutting down", "signal", s)
			cancel(shutdownSignal{s})
		case <-ctx.Done():
		}
	}()

	// Initialize the receiver
	source, err := gpio.NewRealSource(cfg.Chip, cfg.Line)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer source.Close()

	// Print reading mode
	if cfg.PrintReading {
		err := printReading(ctx, source, uint8(cfg.Channel), time.Now, os.Stdout)
		if context.Cause(ctx) != nil {
			return nil
		}
		return err
	}

	// Wait for the network before anything needs it
	host, _, err := mqtt.SplitBroker(cfg.Broker)
	if err != nil {
		return err
	}
	lnk := link.New()
	linkCtx, cancelLink := context.WithTimeout(ctx, cfg.LinkTimeout)
	err = lnk.Watch(linkCtx, host, link.DefaultPollInterval)
	cancelLink()
	if err != nil {
		if context.Cause(ctx) != nil {
			return nil
		}
		return &logic.FatalError{Reason: fmt.Sprintf("network not up after %v", cfg.LinkTimeout), Err: err}
	}

	// Set the wall clock
	clk := clock.New(nil)
	arbCfg := cfg.Arbiter()
	var times timesync.TimeSource
	if cfg.NTPServer != "" {
		ntpClient, err := timesync.NewClient(cfg.NTPServer, cfg.NTPTimeout)
		if err != nil {
			return err
		}
		epoch, err := ntpClient.GetTime(ctx)
		if err != nil {
			if context.Cause(ctx) != nil {
				return nil
			}
			return &logic.FatalError{Reason: "initial time sync", Err: err}
		}
		step := clk.Rebase(epoch)
		slog.Info("clock set", "server", cfg.NTPServer, "time", clk.Now(), "step", step)
		times = ntpClient
	} else {
		arbCfg.ResyncInterval = 0
		slog.Warn("time sync disabled, using the system clock")
	}

	// Initialize MQTT
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = mqtt.DefaultClientID()
	}
	client, err := mqtt.NewClient(mqtt.Config{
		Broker:         cfg.Broker,
		ClientID:       clientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Protocol:       cfg.Protocol,
		QoS:            byte(cfg.QoS),
		ConnectTimeout: cfg.PublishTimeout,
	}, lnk)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(clk.Now(), status.Config{
		Broker:        cfg.Broker,
		ClientID:      clientID,
		Protocol:      cfg.Protocol,
		Chip:          cfg.Chip,
		Line:          cfg.Line,
		Channel:       cfg.Channel,
		NTPServer:     cfg.NTPServer,
		StableCount:   cfg.StableCount,
		MinIntervalMs: cfg.MinPublishInterval.Milliseconds(),
		LivenessMs:    cfg.LivenessCeiling.Milliseconds(),
		ResyncMs:      arbCfg.ResyncInterval.Milliseconds(),
		HTTPAddr:      cfg.HTTPAddr,
	})
	tracker.SetClock(clk.Now)
	tracker.SetLinkUp(lnk.IsUp())
	if times != nil {
		tracker.RecordResync(clk.Now(), nil)
	}

	sd, err := watchdog.NewSystemd()
	if err != nil {
		slog.Warn("systemd watchdog unavailable", "err", err)
	}
	timer := watchdog.NewTimer(cfg.WatchdogTimeout, func() {
		slog.Error("watchdog expired, control loop stalled", "timeout", cfg.WatchdogTimeout)
		os.Exit(1)
	})
	defer timer.Stop()
	dog := watchdog.Multi{timer}
	if sd != nil {
		dog = append(dog, sd)
	}

	g := &gateway{
		source:  source,
		pub:     client,
		times:   times,
		clock:   clk,
		arbiter: logic.NewArbiter(arbCfg, time.Now()),
		dog:     dog,
		tracker: tracker,
		cfg:     cfg,
		now:     time.Now,
	}

	// Publish startup event with full status snapshot
	g.publishSystem(ctx, "STARTUP", "")

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	if sd != nil {
		if err := sd.Ready(); err != nil {
			slog.Warn("systemd notify failed", "err", err)
		}
		defer sd.Stopping()
	}

	slog.Info("started",
		"broker", cfg.Broker, "client_id", clientID, "protocol", cfg.Protocol,
		"gpio", fmt.Sprintf("%s/%d", cfg.Chip, cfg.Line), "channel", cfg.Channel,
		"min_interval", cfg.MinPublishInterval, "liveness", cfg.LivenessCeiling)

	return g.runLoop(ctx)
}

// printReading waits for one decodable frame on the configured channel and
// prints it as a reading payload.
func printReading(ctx context.Context, source gpio.Source, channel uint8, now func() time.Time, w io.Writer) error {
	buf := make([]decoder.Symbol, gpio.BufferSize)
	for {
		n, err := source.Receive(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		r, err := decoder.Decode(buf[:n], channel)
		if err != nil {
			continue
		}
		payload, err := mqtt.FormatPayload(r, now())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", payload)
		return nil
	}
}
