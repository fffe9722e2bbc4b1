// Command fingerprint prints the local device's hardware fingerprint as
// JSON, for use by provisioning tooling when calling the binding API.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"wsbind/internal/fingerprint"
)

func main() {
	// Collector diagnostics go to stderr so stdout stays machine-readable
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	collector := fingerprint.NewCollector(logger)
	fp, err := collector.Collect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to collect fingerprint: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fp); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode fingerprint: %v\n", err)
		os.Exit(1)
	}
}
