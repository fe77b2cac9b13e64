package main

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
// at release build time; left as "dev" for local builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
