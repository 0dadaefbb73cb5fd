// Command touch-switch turns GPIO touch sensors into relay switches that
// coordinate with peer switches over MQTT.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/touch-switch/internal/channel"
	"github.com/sweeney/touch-switch/internal/config"
	"github.com/sweeney/touch-switch/internal/gpio"
	"github.com/sweeney/touch-switch/internal/mqtt"
	"github.com/sweeney/touch-switch/internal/router"
	"github.com/sweeney/touch-switch/internal/status"
	"github.com/sweeney/touch-switch/internal/timer"
	"github.com/sweeney/touch-switch/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errReset makes the process exit non-zero so the service manager restarts it.
var errReset = errors.New("reset requested")

func main() {
	app := &cli.App{
		Name:    "touch-switch",
		Usage:   "multi-channel touch switch with MQTT group control",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration `FILE` (defaults apply when empty)"},
			&cli.StringFlag{Name: "log", Usage: "log `LEVEL` (overrides the configuration)"},
			&cli.StringFlag{Name: "broker", Usage: "MQTT broker `URL` (overrides the configuration)"},
			&cli.StringFlag{Name: "http", Usage: "HTTP status `ADDR`, empty to disable (overrides the configuration)"},
			&cli.BoolFlag{Name: "print-config", Usage: "print the effective configuration and exit"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Bool("print-config") {
				data, err := cfg.Marshal()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("log") {
		cfg.LogLevel = c.String("log")
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = c.String("broker")
	}
	if c.IsSet("http") {
		cfg.HTTPAddr = c.String("http")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.ClientID(),
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Topics:         cfg.Topics(),
		BufferSize:     cfg.MQTT.BufferSize,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	clock := timer.SystemClock()
	channels, err := buildChannels(cfg, clock, chip, client)
	if err != nil {
		return err
	}

	reset := make(chan struct{}, 1)
	r := router.New(router.Config{
		Topics:         cfg.Topics(),
		Version:        version,
		Heartbeat:      cfg.Heartbeat(),
		InitStateDelay: cfg.InitStateDelay(),
		Reset: func() {
			select {
			case reset <- struct{}{}:
			default:
			}
		},
	}, clock, channels, client)

	tracker := status.NewTracker(time.Now(), status.Config{
		Hostname:    cfg.Hostname,
		Version:     version,
		PollMs:      int64(cfg.PollMs),
		HeartbeatMs: cfg.Heartbeat().Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		BaseTopic:   cfg.MQTT.BaseTopic,
		GroupTopic:  cfg.MQTT.GroupTopic,
		HTTPAddr:    cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logrus.WithError(err).Error("http server stopped")
			}
		}()
		defer srv.Shutdown()
		logrus.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	logrus.WithFields(logrus.Fields{
		"hostname": cfg.Hostname,
		"version":  version,
		"channels": len(channels),
		"broker":   cfg.MQTT.Broker,
		"poll":     cfg.Poll(),
	}).Info("started")

	ticker := time.NewTicker(cfg.Poll())
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{router: r, client: client, tracker: tracker}
	return d.runLoop(ticker.C, sig, reset)
}

// buildChannels creates the configured channels, requests their lines and
// enables them. Disabled channels do not watch their input.
func buildChannels(cfg config.Config, clock timer.Clock, chip gpio.Chip, pub channel.Publisher) ([]*channel.Channel, error) {
	resolved := cfg.Resolve()
	channels := make([]*channel.Channel, 0, len(resolved))
	for i, cc := range resolved {
		chCfg := cfg.Channels[i]

		var out channel.Output
		if chCfg.HasOutput() {
			o, err := chip.Output(chCfg.PinOut, chCfg.ActiveLow)
			if err != nil {
				return nil, fmt.Errorf("channel %d output: %w", i, err)
			}
			out = o
		}

		c := channel.New(cc, clock, out, pub)
		if !c.Disabled() {
			if err := chip.WatchInput(chCfg.PinIn, chCfg.ActiveLow, c.Edges()); err != nil {
				return nil, fmt.Errorf("channel %d input: %w", i, err)
			}
		}
		if err := c.Enable(); err != nil {
			logrus.WithError(err).WithField("channel", i).Warn("enable")
		}
		channels = append(channels, c)
	}
	return channels, nil
}

// daemon is the state owned by the main loop.
type daemon struct {
	router  *router.Router
	client  mqtt.Client
	tracker *status.Tracker
}

// runLoop serializes everything that touches channel state: ticks, inbound
// messages and connection events.
func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal, reset <-chan struct{}) error {
	for {
		select {
		case s := <-sig:
			logrus.WithField("signal", s.String()).Info("shutting down")
			d.shutdown()
			return nil

		case <-reset:
			d.shutdown()
			return errReset

		case <-d.client.Connects():
			d.onConnect()

		case msg := <-d.client.Messages():
			d.onMessage(msg)

		case <-tick:
			d.onTick()
		}
	}
}

func (d *daemon) onTick() {
	if err := d.router.Poll(); err != nil {
		// Don't crash on publish failure
		logrus.WithError(err).Warn("poll")
	}
	d.updateStatus()
}

func (d *daemon) onMessage(msg mqtt.Message) {
	if err := d.router.Dispatch(msg.Topic, msg.Payload); err != nil {
		logrus.WithError(err).WithField("topic", msg.Topic).Warn("dispatch")
	}
}

func (d *daemon) onConnect() {
	if err := d.router.Connected(); err != nil {
		logrus.WithError(err).Warn("publish after connect")
	}
	if d.tracker != nil {
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
	}
}

// shutdown turns every output off, publishes the off states and marks the
// device offline.
func (d *daemon) shutdown() {
	for _, c := range d.router.Channels() {
		log := logrus.WithField("channel", c.Index())
		if err := c.Disable(); err != nil {
			log.WithError(err).Warn("disable")
			continue
		}
		if c.Disabled() {
			continue
		}
		if err := c.PublishState(); err != nil {
			log.WithError(err).Warn("failed to publish state")
		}
	}
	if err := d.client.PublishDevice(mqtt.PayloadOffline); err != nil {
		logrus.WithError(err).Warn("failed to publish offline")
	}
	d.updateStatus()
}

func (d *daemon) updateStatus() {
	if d.tracker == nil {
		return
	}
	chans := d.router.Channels()
	views := make([]status.Channel, len(chans))
	for i, c := range chans {
		views[i] = status.FromChannel(c)
	}
	d.tracker.Update(views, d.router.InitialStateSent())
	d.tracker.SetMQTTConnected(d.client.IsConnected())
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
