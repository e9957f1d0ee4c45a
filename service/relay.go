// Package service manages the lifecycle of the relay: circuit artifact
// provisioning, proof verification setup and the HTTP API server.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.vocdoni.io/dvote/db"

	"github.com/vocdoni/zkdao/api"
	"github.com/vocdoni/zkdao/ledger/arboledger"
	"github.com/vocdoni/zkdao/prover"
)

// Relay manages the relay HTTP API server and its dependencies.
type Relay struct {
	db     db.Database
	api    *api.API
	mu     sync.Mutex
	cancel context.CancelFunc
	host   string
	port   int
}

// NewRelay creates a Relay instance over the given database.
func NewRelay(database db.Database, host string, port int) *Relay {
	return &Relay{
		db:   database,
		host: host,
		port: port,
	}
}

// Start provisions the verification key and begins serving the API. It
// returns an error if the service is already running or if it fails to
// start.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("service already running")
	}

	if err := DownloadArtifacts(ctx, 5*time.Minute); err != nil {
		return fmt.Errorf("could not provision circuit artifacts: %w", err)
	}
	verifier, err := prover.NewRelayVerifier(prover.Artifacts.VerifyingKey())
	if err != nil {
		return fmt.Errorf("could not load verification key: %w", err)
	}

	_, r.cancel = context.WithCancel(ctx)

	r.api, err = api.New(&api.APIConfig{
		Host:     r.host,
		Port:     r.port,
		DB:       r.db,
		Ledger:   arboledger.New(r.db),
		Verifier: verifier,
	})
	if err != nil {
		r.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server and closes the database.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.db.Close()
}

// HostPort returns the host and port the API server binds to.
func (r *Relay) HostPort() (string, int) {
	return r.host, r.port
}

// DownloadArtifacts makes the membership circuit artifacts available
// locally, downloading whatever the cache is missing.
func DownloadArtifacts(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return prover.Artifacts.EnsureLoaded(ctx)
}
