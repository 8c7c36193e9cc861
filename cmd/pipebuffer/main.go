// Command pipebuffer sits between two ends of a unix pipeline and
// amplifies the effective pipe capacity: it absorbs bursts from the
// upstream producer in a fixed-size in-memory ring buffer so a slow
// consumer does not stall a fast producer beyond the configured budget.
//
//	producer | pipebuffer -s 256m | consumer
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pipebuffer/pipebuffer"
	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "pipebuffer",
		Usage:   "A tool to rapidly buffer and re-emit data in unix pipelines.",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "size",
				Aliases: []string{"s"},
				Usage:   "The buffer size, in bytes or with k[b]/m[b]/g[b]/p[b] suffix.",
				Value:   "256m",
			},
			&cli.StringFlag{
				Name:    "in",
				Aliases: []string{"i"},
				Usage:   "The upstream source: '-' (stdin), a file path or tcp://host:port.",
				Value:   "-",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "The downstream sink: '-' (stdout), a file path, tcp://host:port or kafka://host:port/topic.",
				Value:   "-",
			},
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "With a file source, keep reading bytes appended after EOF.",
			},
			&cli.StringFlag{
				Name:  "otel-endpoint",
				Usage: "OTLP gRPC collector endpoint for metrics and traces (disabled when empty).",
			},
		},

		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		cli.HandleExitCoder(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancelCtx()

	sizeArg := cliCtx.String("size")
	size, err := config.ParseSize(sizeArg)
	if err != nil || size == 0 || size > math.MaxInt {
		cli.ShowAppHelp(cliCtx)
		return cli.Exit(fmt.Sprintf("Error: argument %q is not a valid size.", sizeArg), 1)
	}

	if endpoint := cliCtx.String("otel-endpoint"); endpoint != "" {
		shutdown, err := telemetry.InitOTLP(ctx, endpoint, "pipebuffer")
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: failed to initialize telemetry: %v", err), 1)
		}
		defer shutdown(context.Background())
	}

	buf := pipebuffer.NewBuffer(int(size))

	ingressStage, err := newIngressStage(cliCtx, buf)
	if err != nil {
		cli.ShowAppHelp(cliCtx)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	egressStage, err := newEgressStage(cliCtx, buf)
	if err != nil {
		cli.ShowAppHelp(cliCtx)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	pipeline := pipebuffer.NewPipeline()
	pipeline.AddStage(ingressStage)
	pipeline.AddStage(egressStage)

	if err := pipeline.Init(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	pipeline.Run(ctx)

	// Normal shutdown: the source hits end-of-stream, the buffer closes
	// and the sink drains the remaining bytes. On a signal, Close forces
	// the same drain path.
	done := make(chan struct{})
	go func() {
		pipeline.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	pipeline.Close()

	return nil
}
