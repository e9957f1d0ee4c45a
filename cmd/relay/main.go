package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkdao/config"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/service"
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	host := flag.String("host", config.DefaultRelayHost, "API bind address")
	port := flag.Int("port", config.DefaultRelayPort, "API bind port")
	dataDir := flag.String("dataDir", filepath.Join(home, config.DefaultDataDir),
		"directory for the relay state")
	logLevel := flag.String("logLevel", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log.Init(*logLevel, "stdout", nil)

	database, err := metadb.New(db.TypePebble, filepath.Join(*dataDir, "relay"))
	if err != nil {
		log.Fatalf("could not open database: %v", err)
	}

	relay := service.NewRelay(database, *host, *port)
	if err := relay.Start(context.Background()); err != nil {
		log.Fatalf("could not start relay: %v", err)
	}
	log.Infow("relay running", "host", *host, "port", *port, "dataDir", *dataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infow("shutting down")
	relay.Stop()
}
