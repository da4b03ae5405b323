// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/derive/services/derive"
	"github.com/AleutianAI/derive/services/derive/telemetry"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the derive HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, c.cfg.Telemetry, telemetry.WithServiceVersion(version))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			c.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	lib, err := c.library(0, false)
	if err != nil {
		return err
	}
	st, err := c.openStore(lib)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := derive.NewService(lib, st,
		derive.WithMaxGenerations(c.cfg.Search.MaxGenerations),
		derive.WithSearchOptions(c.cfg.Search.SearchOptions()...),
		derive.WithLogger(c.logger))

	if c.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := derive.NewRouter(svc, derive.RouterConfig{
		ServiceName: c.cfg.Telemetry.ServiceName,
		RateLimit:   c.cfg.Server.RateLimit,
		Burst:       c.cfg.Server.Burst,
		Metrics:     telemetry.MetricsHandler(),
	})

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("listening", slog.String("addr", srv.Addr), slog.Int("ops", lib.Size()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		c.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
