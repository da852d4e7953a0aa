package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efreitasn/stockserver/internal/client"
)

func main() {
	verbose := flag.Bool("v", false, "Print every full response")
	drain := flag.Duration("drain", 100*time.Millisecond, "How long to wait for nowait requests after the last block")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-v] <script> <port|host:port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Specify InputFile and ServerPort")
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open input file: '%s'.\n", flag.Arg(0))
		os.Exit(2)
	}
	script, err := client.ParseScript(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
		os.Exit(2)
	}

	addr := flag.Arg(1)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort("localhost", addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := client.NewRunner(client.New(addr), client.Options{
		Out:          os.Stdout,
		Verbose:      *verbose,
		DrainTimeout: *drain,
	}, logger)
	rep, err := runner.Run(ctx, script)
	for _, fail := range rep.Failures {
		fmt.Fprintln(os.Stderr, fail.String())
	}
	if err != nil {
		logger.Error("run interrupted", slog.String("error", err.Error()))
	}
	logger.Info("run finished",
		slog.Int("blocks", rep.Blocks),
		slog.Int("requests", rep.Requests),
		slog.Int("failures", len(rep.Failures)),
		slog.Int("abandoned", rep.Abandoned),
	)
	if !rep.OK() || err != nil {
		os.Exit(3)
	}
}
