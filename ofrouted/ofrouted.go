package main

// ofrouted: controller daemon. Loads the static configuration, builds
// the routing engine and serves the inspection API. The switch wire
// driver attaches to the engine through the ofctrl boundary; two
// daemons with complementary domain configs form a dual instance
// deployment.

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contiv/ofroute/ofrouted/api"
	"github.com/contiv/ofroute/pkg/ofnet"
	"github.com/contiv/ofroute/pkg/topoConf"

	"github.com/golang/glog"
)

func main() {
	var configPath string
	var apiAddr string

	flag.StringVar(&configPath, "config", "/etc/ofroute/config.yml", "controller configuration file")
	flag.StringVar(&apiAddr, "api-listen", ":8000", "inspection API listen address")
	flag.Parse()

	cfg, err := topoConf.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	ctrler, err := ofnet.NewController(cfg)
	if err != nil {
		glog.Fatalf("Failed to create controller: %v", err)
	}

	httpServer := api.CreateServer(ctrler, apiAddr)

	glog.Infof("ofrouted is running")

	// Wait for a signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	glog.Infof("Received %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)

	ctrler.Stop()
	glog.Flush()
}
