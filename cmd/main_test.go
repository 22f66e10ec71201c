package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/guildboard/internal/config"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestBuildService(t *testing.T) {
	convey.Convey("Given a memory-backed configuration", t, func() {
		cfg := config.New()
		cfg.StorageDriver = "memory"
		cfg.WorkerCount = 1
		cfg.RuleSets = map[string]config.RuleSetConfig{
			"slayer_t5": {Source: "slayer", Weights: map[string]map[string]float64{"zombie": {"4": 5}}},
		}

		svc, err := buildService(cfg, logger.Discard())
		convey.So(err, convey.ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, svc)

		convey.Convey("Then the configured kind can be created over HTTP", func() {
			req := httptest.NewRequest("POST", "/events", strings.NewReader(`{"kind":"slayer_t5","duration":"24h"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
		})

		convey.Convey("Then docs and health are served", func() {
			for _, path := range []string{"/healthz", "/openapi.yaml", "/api-docs", "/metrics", "/stats"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})

	convey.Convey("Given a rule-set with a bad tier", t, func() {
		cfg := config.New()
		cfg.RuleSets = map[string]config.RuleSetConfig{
			"odd": {Weights: map[string]map[string]float64{"zombie": {"x": 1}}},
		}
		_, err := buildService(cfg, logger.Discard())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("The metrics updaters return when the context ends", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
