package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/okian/rally/internal/adapters/http/api"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		_ = os.Unsetenv(config.EnvConfigFile)

		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("RALLY_ADDR", ":8080")
			_ = os.Setenv("RALLY_QUEUE_SIZE", "1000")
			_ = os.Setenv("RALLY_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("RALLY_ADDR")
				_ = os.Unsetenv("RALLY_QUEUE_SIZE")
				_ = os.Unsetenv("RALLY_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StandingQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When running one-shot jobs against an empty store", func() {
			out, err := execute("--store", "memory", "consolidate")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "selected=0")

			out, err = execute("--store", "memory", "refresh-profiles")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "candidates=0")
		})

		convey.Convey("When running a simulation", func() {
			out, err := execute("--store", "memory", "simulate",
				"--users", "5", "--interactions", "120", "--workers", "3", "--seed", "11")

			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "generated=120 recorded=120 failed=0")
			convey.So(out, convey.ShouldContainSubstring, "  1  ")
		})

		convey.Convey("When the store flag is invalid", func() {
			_, err := execute("--store", "postgres", "consolidate")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When testing HTTP server creation", func() {
			c := config.New()
			c.Store = config.StoreMemory
			svc, closeStore, err := newService(context.Background(), c)
			convey.So(err, convey.ShouldBeNil)
			defer closeStore()
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			ts := httptest.NewServer(api.NewServer(svc, svc, c.MaxLeaderboardLimit).Handler())
			defer ts.Close()

			convey.Convey("Then health and metrics respond", func() {
				resp, err := http.Get(ts.URL + "/healthz")
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

				updateSystemMetrics()
				resp, err = http.Get(ts.URL + "/metrics")
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}
