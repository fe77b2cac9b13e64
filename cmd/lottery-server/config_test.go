package main

import "testing"

func validConfig() *appConfig {
	return &appConfig{
		port:          12345,
		listenBacklog: 5,
		clientsAmount: 3,
		logFormat:     "text",
		logLevel:      "info",
		store:         "memory",
		storePath:     "bets.csv",
		winningNumber: "7723",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badStore", func(c *appConfig) { c.store = "redis" }},
		{"emptyStorePathForFile", func(c *appConfig) { c.store = "file"; c.storePath = "  " }},
		{"badPort", func(c *appConfig) { c.port = 0 }},
		{"portTooHigh", func(c *appConfig) { c.port = 70000 }},
		{"badBacklog", func(c *appConfig) { c.listenBacklog = 0 }},
		{"badClientsAmount", func(c *appConfig) { c.clientsAmount = 0 }},
		{"emptyWinningNumber", func(c *appConfig) { c.winningNumber = "" }},
		{"negativeLogMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -1 }},
		{"negativeReadTimeout", func(c *appConfig) { c.readTimeout = -1 }},
	}
	for _, tc := range tests {
		c := validConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
