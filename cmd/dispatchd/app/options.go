// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package app wires the dispatch core into a runnable daemon: flag
// parsing, plugin registration, registry/dispatcher construction, and the
// metrics/healthz HTTP server. It follows the teacher's
// cmd/event-logger/app option-object shape — a struct with AddFlags/
// Validate/Run — generalized from a Kubernetes event watcher to an output
// dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gardener/logdispatch/internal/config"
	"github.com/gardener/logdispatch/internal/dispatch"
	"github.com/gardener/logdispatch/internal/healthz"
	"github.com/gardener/logdispatch/internal/log"
	"github.com/gardener/logdispatch/internal/metrics"
	"github.com/gardener/logdispatch/internal/plugins"
	"github.com/gardener/logdispatch/internal/registry"
)

// Options has all the context and parameters needed to run the dispatch
// daemon.
type Options struct {
	LogLevel      string
	ListenAddress string
	Outputs       []string // "plugin[://host:port/path][,key=value...]"
}

// NewOptions returns Options populated with defaults.
func NewOptions() *Options {
	return &Options{
		LogLevel:      "info",
		ListenAddress: ":2021",
	}
}

// AddFlags registers the daemon's flags on flags.
func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&o.ListenAddress, "listen-address", o.ListenAddress, "address the metrics and healthz endpoints listen on")
	flags.StringArrayVar(&o.Outputs, "output", nil, "output destination, e.g. stdout or loki://host:port/path,match=app.*,tls.verify=true; may be repeated")
}

// Validate checks the option set for internal consistency before Run.
func (o *Options) Validate() error {
	if len(o.Outputs) == 0 {
		return errors.New("at least one --output must be configured")
	}
	return nil
}

// NewCommand builds the cobra command for the dispatch daemon.
func NewCommand() *cobra.Command {
	opts := NewOptions()

	cmd := &cobra.Command{
		Use:          "dispatchd",
		Short:        "Run the log output dispatch daemon",
		Long:         "dispatchd multiplexes formatted record batches across configured output destinations.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return opts.Run(cmd.Context())
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// Run builds the registry, dispatcher and HTTP server from the configured
// options and blocks until an interrupt signal is received.
func (o *Options) Run(ctx context.Context) error {
	logger := log.NewLogger(o.LogLevel)
	logger.Info("starting dispatchd")

	catalog := registry.NewCatalog()
	if err := catalog.Register(plugins.NewStdout(logger)); err != nil {
		return err
	}
	if err := catalog.Register(plugins.NewNoop(logger)); err != nil {
		return err
	}
	catalog.Start()

	reg := registry.NewRegistry(catalog)
	for _, spec := range o.Outputs {
		if err := addOutput(reg, spec); err != nil {
			return fmt.Errorf("dispatchd: %w", err)
		}
	}
	if err := reg.Check(nil); err != nil {
		return fmt.Errorf("dispatchd: %w", err)
	}
	defer func() {
		if err := reg.Destroy(); err != nil {
			logger.Error(err, "error tearing down registry")
		}
	}()

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	d := dispatch.NewDispatcher(reg, collector, logger)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.Run(runCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthz.Handler(reg))

	srv := &http.Server{Addr: o.ListenAddress, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics/healthz server error")
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	_ = srv.Close()
	return nil
}

func addOutput(reg *registry.Registry, spec string) error {
	parts := strings.Split(spec, ",")
	dest, err := config.ParseDestination(parts[0])
	if err != nil {
		return err
	}

	props := map[string]string{}
	if dest.Host != "" {
		props["host"] = dest.Host
	}
	if dest.Port != "" {
		props["port"] = dest.Port
	}
	if dest.Path != "" {
		props["path"] = dest.Path
	}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid output property %q in %q", kv, spec)
		}
		props[k] = v
	}

	_, err = reg.New(dest.Plugin, props)
	return err
}
