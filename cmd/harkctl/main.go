package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/emmett/hark/internal/output"
	"github.com/emmett/hark/internal/server/grpc"
	"github.com/emmett/hark/internal/supervisor"
	"github.com/emmett/hark/internal/wordstore"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	addr        = flag.String("addr", envOr("HARK_GRPC_ADDR", "localhost:50051"), "Address of the hark gRPC control server")
	format      = flag.String("format", "text", "Event output format: text, json")
	timeout     = flag.Duration("timeout", 5*time.Second, "Timeout for unary calls")
	showVersion = flag.Bool("version", false, "Show version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: harkctl [flags] <command> [args]

Commands:
  start               start listening
  stop                stop listening
  status              print the listener status
  words <list>        replace the active trigger words (comma separated)
  events              stream listener events until interrupted

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("harkctl v%s (commit: %s)\n", Version, GitCommit)
		return
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		output.DefaultConsoleOutput().Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	client, err := grpc.Dial(*addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", *addr, err)
	}
	defer client.Close()

	if cmd == "events" {
		f, err := output.NewFormatter(*format, os.Stdout)
		if err != nil {
			return err
		}
		err = client.Events(ctx, f.WriteEvent)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd {
	case "start":
		if err := client.Start(callCtx); err != nil {
			return err
		}
	case "stop":
		if err := client.Stop(callCtx); err != nil {
			return err
		}
	case "words":
		words := wordstore.ParseInput(strings.Join(args, ","))
		if err := client.SetTriggerWords(callCtx, words); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	st, err := client.Status(callCtx)
	if err != nil {
		return err
	}
	return printStatus(st)
}

func printStatus(st supervisor.Status) error {
	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Printf("State:    %s\n", st.State)
	fmt.Printf("Running:  %t\n", st.Running)
	fmt.Printf("Words:    %d\n", st.Words)
	fmt.Printf("Failures: %d\n", st.Failures)
	if st.LastUtterance != "" {
		fmt.Printf("Heard:    %q\n", st.LastUtterance)
	}
	if st.Session != "" {
		fmt.Printf("Session:  %s\n", st.Session)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
