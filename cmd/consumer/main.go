// Consumer is a transactional consume-transform-produce loop. It reads
// batches from the configured topics, echoes each record to the output
// topic (when one is given) inside the batch's transaction, and commits the
// consumed offsets together with the produced records. On failure the
// transaction is aborted and the batch is rolled back. This is meant as an
// example of how to use the library.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ptoraskar/fluvii/client"
	"github.com/ptoraskar/fluvii/config"
	"github.com/ptoraskar/fluvii/consumer"
	"github.com/ptoraskar/fluvii/metrics"
	"github.com/ptoraskar/fluvii/producer"
)

func main() {
	configPath := flag.String("config", "fluvii.yaml", "path to yaml config")
	outTopic := flag.String("out-topic", "", "topic to echo records to, empty to only consume")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()
	cl, err := client.New(cfg, true, logger)
	if err != nil {
		logger.Fatal("creating client", zap.Error(err))
	}
	defer cl.Close()
	pr, err := producer.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("creating producer", zap.Error(err))
	}
	defer pr.Close()

	var decoder *client.Decoder
	if cfg.SchemaRegistryURL != "" {
		if decoder, err = client.NewDecoder(cfg.SchemaRegistryURL); err != nil {
			logger.Fatal("creating decoder", zap.Error(err))
		}
	}

	tc := &consumer.Transactional{
		Consumer: consumer.Consumer{
			Client:      cl,
			Metrics:     m,
			Logger:      logger,
			PollTimeout: cfg.PollTimeout(),
		},
		Window: consumer.Window{
			MaxCount:    cfg.BatchMaxCount,
			MaxDuration: cfg.BatchMaxTime(),
		},
		RetainMessages: cfg.RetainBatchMessages,
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigchan:
			logger.Info("terminating", zap.String("signal", sig.String()))
			if tc.PendingCommits() {
				abort(ctx, tc, pr, logger)
			}
			return
		default:
		}
		msg, err := tc.Consume(0, 1)
		switch {
		case err == nil:
			if decoder != nil {
				if v, err := decoder.Decode(msg); err == nil {
					logger.Debug("decoded value", zap.Any("value", v))
				}
			}
			if *outTopic == "" {
				continue
			}
			if err := pr.Produce(*outTopic, msg.KeyCopy(), msg.ValueCopy(), msg.HeadersCopy()); err != nil {
				logger.Error("produce failed", zap.Error(err))
				abort(ctx, tc, pr, logger)
			}
		case errors.Is(err, consumer.ErrBatchExhausted):
			if err := tc.Commit(ctx, pr); err != nil {
				logger.Error("commit failed", zap.Error(err))
				abort(ctx, tc, pr, logger)
			}
		case errors.Is(err, consumer.ErrNoMessage):
			// idle, nothing to read
		default:
			logger.Error("consume failed", zap.Error(err))
			abort(ctx, tc, pr, logger)
		}
	}
}

// abort discards the in-flight batch: the producer transaction first, then
// the consumer's read position.
func abort(ctx context.Context, tc *consumer.Transactional, pr *producer.Producer, logger *zap.Logger) {
	if pr.ActiveTransaction() {
		if err := pr.AbortTransaction(ctx); err != nil {
			logger.Error("abort failed", zap.Error(err))
		}
	}
	if err := tc.Rollback(); err != nil {
		logger.Error("rollback failed", zap.Error(err))
	}
}
