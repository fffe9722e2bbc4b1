// Command bind-server runs the workshop license binding service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wsbind/internal/app"
	"wsbind/internal/config"
	"wsbind/pkg/contracts"
)

func main() {
	configFile := flag.String("config", "wsbind.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		info := contracts.GetVersionInfo()
		fmt.Printf("%s (built: %s, commit: %s, go: %s, os: %s/%s)\n",
			contracts.GetVersionString(), info.BuildTime, info.GitCommit,
			info.GoVersion, info.OS, info.Architecture)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
