package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	port            int
	listenBacklog   int
	clientsAmount   int
	logFormat       string
	logLevel        string
	metricsAddr     string
	store           string
	storePath       string
	winningNumber   string
	mdnsEnable      bool
	mdnsName        string
	logMetricsEvery time.Duration
	readTimeout     time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	port := flag.Int("port", 12345, "TCP listen port")
	listenBacklog := flag.Int("listen-backlog", 5, "TCP listen backlog hint (informational; the Go runtime does not expose OS backlog tuning)")
	clientsAmount := flag.Int("clients-amount", 1, "Number of agencies expected to signal FINISHED before the raffle runs")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	store := flag.String("store", "memory", "Bet storage backend: memory|file")
	storePath := flag.String("store-path", "bets.csv", "CSV file path when --store=file")
	winningNumber := flag.String("winning-number", "", "Fixed winning number drawn at raffle time (required)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default lottery-server-<hostname>)")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	readTimeout := flag.Duration("read-timeout", 0, "Per-connection read deadline; 0 disables it")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.port = *port
	cfg.listenBacklog = *listenBacklog
	cfg.clientsAmount = *clientsAmount
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.store = *store
	cfg.storePath = *storePath
	cfg.winningNumber = *winningNumber
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.readTimeout = *readTimeout

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs semantic validation of the parsed configuration. It
// does not attempt to open the listener or the store, only checks
// values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.store {
	case "memory", "file":
	default:
		return fmt.Errorf("invalid store: %s", c.store)
	}
	if c.store == "file" && strings.TrimSpace(c.storePath) == "" {
		return errors.New("store-path must not be empty when store=file")
	}
	if c.port <= 0 || c.port > 65535 {
		return fmt.Errorf("port must be in 1..65535 (got %d)", c.port)
	}
	if c.listenBacklog <= 0 {
		return fmt.Errorf("listen-backlog must be > 0 (got %d)", c.listenBacklog)
	}
	if c.clientsAmount <= 0 {
		return fmt.Errorf("clients-amount must be > 0 (got %d)", c.clientsAmount)
	}
	if strings.TrimSpace(c.winningNumber) == "" {
		return errors.New("winning-number must not be empty")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	if c.readTimeout < 0 {
		return errors.New("read-timeout must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps LOTTERY_* environment variables to config fields
// unless a corresponding flag was explicitly set on the command line.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["port"]; !ok {
		if v, ok := get("LOTTERY_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.port = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid LOTTERY_PORT: %w", err)
			}
		}
	}
	if _, ok := set["listen-backlog"]; !ok {
		if v, ok := get("LOTTERY_LISTEN_BACKLOG"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.listenBacklog = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid LOTTERY_LISTEN_BACKLOG: %w", err)
			}
		}
	}
	if _, ok := set["clients-amount"]; !ok {
		if v, ok := get("LOTTERY_CLIENTS_AMOUNT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.clientsAmount = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid LOTTERY_CLIENTS_AMOUNT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("LOTTERY_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("LOTTERY_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("LOTTERY_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["store"]; !ok {
		if v, ok := get("LOTTERY_STORE"); ok && v != "" {
			c.store = v
		}
	}
	if _, ok := set["store-path"]; !ok {
		if v, ok := get("LOTTERY_STORE_PATH"); ok && v != "" {
			c.storePath = v
		}
	}
	if _, ok := set["winning-number"]; !ok {
		if v, ok := get("LOTTERY_WINNING_NUMBER"); ok && v != "" {
			c.winningNumber = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("LOTTERY_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("LOTTERY_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("LOTTERY_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LOTTERY_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["read-timeout"]; !ok {
		if v, ok := get("LOTTERY_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.readTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LOTTERY_READ_TIMEOUT: %w", err)
			}
		}
	}
	return firstErr
}
