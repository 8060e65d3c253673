package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/davdef/airlift-node/internal/consumer"
	"github.com/davdef/airlift-node/internal/events"
	"github.com/davdef/airlift-node/internal/flow"
	"github.com/davdef/airlift-node/internal/logger"
	"github.com/davdef/airlift-node/internal/node"
	"github.com/davdef/airlift-node/internal/processor"
	"github.com/davdef/airlift-node/internal/producer"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger.Init()
	if err := logger.SetLevel(cli.LogLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cli.LogLevel)
	}
	log := logger.Logger().With("component", "cli")

	bus := events.NewBus(log)
	bus.Subscribe(func(e events.Event) {
		log.Info("node event", "kind", e.Kind, "data", e.Data)
	})

	n := node.New(node.Config{RingCapacity: cli.RingCapacity}, log, bus)

	gen := producer.NewGenerator("tone", cli.ToneHz, int16(cli.Amplitude), logger.WithComponent(log, "producer", "tone"))
	if err := n.AddProducer("tone", gen); err != nil {
		log.Error("failed to add producer", "error", err)
		os.Exit(1)
	}

	f := flow.New("main", logger.WithFlow(log, "main"))
	n.AddFlow(f)
	if err := n.ConnectFlowInput(0, "producer:tone"); err != nil {
		log.Error("failed to connect flow input", "error", err)
		os.Exit(1)
	}
	f.AddProcessor(processor.NewGain(cli.Gain), true)

	writer, err := consumer.NewFileWriter("demo", cli.Output, logger.WithComponent(log, "consumer", "demo"))
	if err != nil {
		log.Error("failed to open output file", "error", err)
		os.Exit(1)
	}
	f.AddConsumer(writer)

	if err := n.Start(); err != nil {
		log.Error("failed to start node", "error", err)
		os.Exit(1)
	}
	log.Info("node started", "id", n.ID.String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := n.Stop(); err != nil {
			log.Error("node stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		st := n.Status()
		log.Info("node stopped cleanly", "uptime", st.Uptime.String())
		printSummary(st)
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

func printSummary(st node.Status) {
	for _, p := range st.Producers {
		fmt.Printf("producer: samples_processed=%s errors=%d\n",
			humanize.Comma(int64(p.SamplesProcessed)), p.Errors)
	}
	for i, fl := range st.Flows {
		fmt.Printf("flow[%d]: state=%v iterations=%s\n", i, fl.State, humanize.Comma(int64(fl.Iterations)))
	}
}
