// slotstriked is the slotstrike runtime daemon.
//
// It listens for Solana pool-creation logs on the fastest configured
// network path and runs the CPMM and OpenBook snipe strategies against
// the configured rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/slotstrike/pkg/config"
	"github.com/psaab/slotstrike/pkg/daemon"
	"github.com/psaab/slotstrike/pkg/replay"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "replay" {
		runReplay(os.Args[2:])
		return
	}

	configFile := flag.String("config", config.DefaultPath, "configuration file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	fpgaEnabled := flag.Bool("fpga", false, "force the FPGA ingress path")
	fpgaVerbose := flag.Bool("fpga-verbose", false, "log every FPGA frame")
	replayBenchmark := flag.Bool("replay-benchmark", false, "run the synthetic replay benchmark and exit")
	apiAddr := flag.String("api-addr", "", "HTTP API listen address (overrides api.http_addr)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC API listen address (overrides api.grpc_addr)")
	flag.Parse()

	// Bootstrap logging until the config's logging section is applied.
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	d := daemon.New(daemon.Options{
		ConfigFile:  *configFile,
		Debug:       *debug,
		FPGA:        *fpgaEnabled,
		FPGAVerbose: *fpgaVerbose,
		Replay:      *replayBenchmark,
		APIAddr:     *apiAddr,
		GRPCAddr:    *grpcAddr,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "slotstriked: %v\n", err)
		os.Exit(1)
	}
}

// runReplay runs the benchmark without loading a config file.
func runReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	count := fs.Int("events", 50_000, "synthetic events per path")
	burst := fs.Int("burst", 512, "events per burst")
	fs.Parse(args)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if *count <= 0 || *burst <= 0 {
		fmt.Fprintln(os.Stderr, "slotstriked: replay: -events and -burst must be greater than 0")
		os.Exit(1)
	}
	replay.Log(replay.Run(*count, *burst))
}
