package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		port:          12345,
		listenBacklog: 5,
		clientsAmount: 1,
		logFormat:     "text",
		logLevel:      "info",
		store:         "memory",
		winningNumber: "1",
	}

	os.Setenv("LOTTERY_CLIENTS_AMOUNT", "5")
	os.Setenv("LOTTERY_MDNS_ENABLE", "true")
	os.Setenv("LOTTERY_WINNING_NUMBER", "7723")
	os.Setenv("LOTTERY_LOG_METRICS_INTERVAL", "5s")
	os.Setenv("LOTTERY_READ_TIMEOUT", "30s")
	t.Cleanup(func() {
		os.Unsetenv("LOTTERY_CLIENTS_AMOUNT")
		os.Unsetenv("LOTTERY_MDNS_ENABLE")
		os.Unsetenv("LOTTERY_WINNING_NUMBER")
		os.Unsetenv("LOTTERY_LOG_METRICS_INTERVAL")
		os.Unsetenv("LOTTERY_READ_TIMEOUT")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.clientsAmount != 5 {
		t.Fatalf("expected clientsAmount override, got %d", base.clientsAmount)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.winningNumber != "7723" {
		t.Fatalf("expected winningNumber override, got %q", base.winningNumber)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.readTimeout != 30*time.Second {
		t.Fatalf("expected readTimeout 30s got %v", base.readTimeout)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{clientsAmount: 3}
	os.Setenv("LOTTERY_CLIENTS_AMOUNT", "9")
	t.Cleanup(func() { os.Unsetenv("LOTTERY_CLIENTS_AMOUNT") })
	if err := applyEnvOverrides(base, map[string]struct{}{"clients-amount": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.clientsAmount != 3 {
		t.Fatalf("expected clientsAmount unchanged at 3, got %d", base.clientsAmount)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{port: 12345}
	os.Setenv("LOTTERY_PORT", "notaport")
	t.Cleanup(func() { os.Unsetenv("LOTTERY_PORT") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
