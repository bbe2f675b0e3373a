package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"chan-rpc/channel"
	"chan-rpc/config"
	"chan-rpc/invoker"
	"chan-rpc/message"
	"chan-rpc/middleware"
	"chan-rpc/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveFlags struct {
	addr        string
	interval    time.Duration
	async       bool
	etcd        []string
	service     string
	metricsAddr string
	rate        float64
	burst       int
}

var sf serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections and push notices to each client's Notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&sf.addr, "addr", ":8080", "listen address")
	f.DurationVar(&sf.interval, "interval", 2*time.Second, "time between notices")
	f.BoolVar(&sf.async, "async", false, "send notices fire-and-forget")
	f.StringSliceVar(&sf.etcd, "etcd", nil, "etcd endpoints to load channel parameters from")
	f.StringVar(&sf.service, "service", "chanrpc", "service name under the etcd config prefix")
	f.StringVar(&sf.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.Float64Var(&sf.rate, "rate", 0, "max served requests per second, 0 for unlimited")
	f.IntVar(&sf.burst, "burst", 10, "rate limiter burst")
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger.Info("channel parameters", zap.Stringer("config", cfg))

	var metrics *middleware.Metrics
	if sf.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = middleware.NewMetrics(reg)
		go serveMetrics(reg)
	}

	svr := server.NewServer(
		server.WithConfig(cfg),
		server.WithLogger(logger),
		server.WithOnConnect(func(ch channel.Channel) { notifyLoop(ctx, ch, metrics) }),
	)
	if err := svr.RegisterName(clockPath, &Clock{}); err != nil {
		return err
	}
	svr.Use(middleware.LoggingMiddleware(logger))
	if metrics != nil {
		svr.Use(metrics.Middleware())
	}
	if sf.rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(sf.rate, sf.burst))
	}
	svr.Use(middleware.TimeOutMiddleware(cfg.Duration(config.TimeoutKey, config.DefaultTimeout)))

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve("tcp", sf.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	return svr.Shutdown(5 * time.Second)
}

// loadConfig merges flag parameters with overrides stored in etcd, if configured.
func loadConfig(ctx context.Context) (*config.Config, error) {
	params := baseParams()
	if sf.async {
		params["Notify."+config.AsyncKey] = "true"
	}
	cfg := config.New(params)
	if len(sf.etcd) == 0 {
		return cfg, nil
	}

	src, err := config.NewEtcdSource(sf.etcd)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer src.Close()
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	overrides, err := src.Load(loadCtx, sf.service)
	if err != nil {
		return nil, fmt.Errorf("load config from etcd: %w", err)
	}
	return cfg.Merge(overrides), nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", sf.metricsAddr))
	if err := http.ListenAndServe(sf.metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

// notifyLoop pushes notices to the Notifier hosted by the peer of ch until the channel
// closes. The invoker is cached on the channel, so it goes away with the connection.
func notifyLoop(ctx context.Context, ch channel.Channel, metrics *middleware.Metrics) {
	log := logger.With(zap.String("channel", ch.ID()), zap.Stringer("remote", ch.RemoteAddr()))
	notifierType := reflect.TypeOf(&Notifier{})
	defer invoker.ReleaseCallback(ch, notifierType, notifierKey)

	var inv invoker.Invoker = invoker.ReferCallback(ch, notifierType, notifierKey,
		invoker.WithPath(notifierPath), invoker.WithLogger(logger))
	if metrics != nil {
		inv = middleware.Wrap(inv, metrics.Middleware())
	}

	ticker := time.NewTicker(sf.interval)
	defer ticker.Stop()
	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !inv.IsAvailable() {
			log.Info("client gone, stopping notices")
			return
		}

		notice := &Notice{Seq: seq, Text: fmt.Sprintf("notice #%d", seq), Sent: time.Now()}
		res, err := inv.Invoke(ctx, message.NewInvocation("Notify", []string{"*main.Notice"}, []any{notice}, nil))
		if err != nil {
			log.Warn("notify failed", zap.Int("seq", seq), zap.Error(err))
			continue
		}
		if res.IsEmpty() {
			log.Debug("notice sent", zap.Int("seq", seq))
			continue
		}
		var ack Ack
		if err := res.Decode(&ack); err != nil {
			log.Warn("bad ack", zap.Int("seq", seq), zap.Error(err))
			continue
		}
		log.Info("notice acknowledged", zap.Int("seq", ack.Seq), zap.String("receiver", ack.Receiver))
	}
}
