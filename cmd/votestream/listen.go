package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream"
	"github.com/dgnsrekt/votestream/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func listenCmd() *cobra.Command {
	var from int64

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream gateway events as JSON lines",
		Long: `Connect to the gateway and print every event as one JSON line on stdout.

The latest resumption marker is written to checkpoint.path, so a restarted
listener picks up where it stopped.

Examples:
  # Listen, resuming from the checkpoint file
  votestream listen

  # Replay from an explicit marker
  votestream listen --from 1700000000000

  # Also push votes to an ntfy topic
  VOTESTREAM_NOTIFY_ENABLED=true VOTESTREAM_NOTIFY_TOPIC=my-votes votestream listen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireToken(); err != nil {
				return err
			}
			ctx := cmd.Context()

			var reg prometheus.Registerer
			var metricsServer *http.Server
			if cfg.Metrics.Addr != "" {
				r := prometheus.NewRegistry()
				r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				reg = r
				metricsServer = serveMetrics(cfg.Metrics.Addr, r)
			}

			client, err := newClient(reg)
			if err != nil {
				return err
			}

			printer := newEventPrinter(cmd.OutOrStdout())
			printer.subscribe(client)

			var forwarder *notify.Forwarder
			if cfg.Notify.Enabled {
				forwarder = notify.NewForwarder(notify.New(cfg.Notify, logger.Named("notify")), logger.Named("notify"))
				forwarder.Subscribe(client)
				logger.Info("forwarding votes to ntfy", zap.String("topic", cfg.Notify.Topic))
			}

			if cmd.Flags().Changed("from") {
				err = client.ConnectFrom(ctx, from)
			} else {
				err = client.Connect(ctx)
			}
			if err != nil {
				if !cfg.Gateway.AutoReconnect {
					return err
				}
				logger.Warn("initial connection failed, retrying in background", zap.Error(err))
			}

			<-ctx.Done()
			logger.Info("shutting down listener...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			// Persist before the close handshake, which may wait on the server.
			if err := client.Flush(shutdownCtx); err != nil {
				logger.Warn("checkpoint flush failed", zap.Error(err))
			}

			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("metrics server shutdown error", zap.Error(err))
				}
			}
			closeErr := client.Close(shutdownCtx)
			if forwarder != nil {
				if err := forwarder.Close(shutdownCtx); err != nil {
					logger.Warn("pending notifications dropped", zap.Error(err))
				}
			}
			if closeErr != nil && !errors.Is(closeErr, votestream.ErrDisconnectTimeout) {
				return closeErr
			}

			if marker, ok := client.Marker(); ok {
				logger.Info("listener stopped", zap.Int64("marker", marker))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "resume from this marker instead of the checkpoint")

	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

// eventPrinter serializes event lines from the gateway and checkpoint
// goroutines.
type eventPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w)}
}

func (p *eventPrinter) print(line eventLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(line); err != nil {
		logger.Warn("failed to write event", zap.String("event", line.Event), zap.Error(err))
	}
}

func (p *eventPrinter) subscribe(c *votestream.Client) {
	c.OnReady(func(e votestream.Ready) { p.print(eventLine{Event: votestream.EventReady, Data: e}) })
	c.OnVote(func(e votestream.Vote) { p.print(eventLine{Event: votestream.EventVote, Data: e}) })
	c.OnTest(func(e votestream.Test) { p.print(eventLine{Event: votestream.EventTest, Data: e}) })
	c.OnReminder(func(e votestream.Reminder) { p.print(eventLine{Event: votestream.EventReminder, Data: e}) })
	c.OnUnknownOp(func(e votestream.UnknownOp) { p.print(eventLine{Event: votestream.EventUnknownOp, Data: e}) })
	c.OnDisconnected(func(e votestream.Disconnect) {
		p.print(eventLine{Event: votestream.EventDisconnected, Data: e})
	})
	c.OnError(func(err error) { p.print(eventLine{Event: votestream.EventError, Error: err.Error()}) })
}
