// Package api implements the reference relay service: the HTTP surface the
// anonymous action pipeline registers with and submits proofs to. It owns the
// group membership ledger, the action registry and the proof verification
// the relay performs before accepting a submission.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.vocdoni.io/dvote/db"

	"github.com/vocdoni/zkdao/ledger/arboledger"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/prover"
)

// ProofVerifier checks submitted proofs. The production implementation is
// prover.RelayVerifier.
type ProofVerifier interface {
	Verify(proof *prover.Proof) error
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	DB       db.Database
	Ledger   *arboledger.LocalLedger
	Verifier ProofVerifier
}

// API type represents the relay HTTP server.
type API struct {
	router   *chi.Mux
	ledger   *arboledger.LocalLedger
	actions  *actionStore
	verifier ProofVerifier
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	a, err := NewLocal(conf)
	if err != nil {
		return nil, err
	}
	go func() {
		log.Infow("starting relay API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// NewLocal builds an API without binding a listener, for tests and callers
// that serve the router themselves.
func NewLocal(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	if conf.DB == nil {
		return nil, fmt.Errorf("missing database instance")
	}
	if conf.Verifier == nil {
		return nil, fmt.Errorf("missing proof verifier")
	}
	a := &API{
		ledger:   conf.Ledger,
		actions:  newActionStore(conf.DB),
		verifier: conf.Verifier,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", GroupsEndpoint, "method", "POST")
	a.router.Post(GroupsEndpoint, a.newGroup)
	log.Infow("register handler", "endpoint", GroupEndpoint, "method", "GET")
	a.router.Get(GroupEndpoint, a.groupInfo)
	log.Infow("register handler", "endpoint", GroupRootEndpoint, "method", "GET")
	a.router.Get(GroupRootEndpoint, a.groupRoot)
	log.Infow("register handler", "endpoint", MembersEndpoint, "method", "POST")
	a.router.Post(MembersEndpoint, a.registerMember)
	log.Infow("register handler", "endpoint", MemberEndpoint, "method", "GET")
	a.router.Get(MemberEndpoint, a.memberIndex)
	log.Infow("register handler", "endpoint", MemberPathEndpoint, "method", "GET")
	a.router.Get(MemberPathEndpoint, a.memberPath)
	log.Infow("register handler", "endpoint", NullifierEndpoint, "method", "GET")
	a.router.Get(NullifierEndpoint, a.nullifierUsed)
	log.Infow("register handler", "endpoint", ActionsEndpoint, "method", "POST")
	a.router.Post(ActionsEndpoint, a.newAction)
	log.Infow("register handler", "endpoint", ActionEndpoint, "method", "GET")
	a.router.Get(ActionEndpoint, a.actionInfo)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.submitVote)
	log.Infow("register handler", "endpoint", CommentsEndpoint, "method", "POST")
	a.router.Post(CommentsEndpoint, a.submitComment)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
