// Package api provides the HTTP query surfaces of the settlement ledger.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rewards-settlement/internal/config"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/merkle"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/storage"
	"github.com/rewards-settlement/internal/types"
)

// Store interfaces for dependency injection and testing

// PayoutReader exposes the payout ledger reads behind the claim surfaces.
type PayoutReader interface {
	ClaimableByWallet(ctx context.Context, wallet string) ([]*storage.ClaimableReward, error)
	ActiveContract(ctx context.Context, week types.ISOWeek, partnerID string) (*models.PayoutContract, error)
	PayoutsForContract(ctx context.Context, contractID string) ([]*models.RewardPayout, error)
	MarkClaimed(ctx context.Context, payoutID, claimTxHash string) error
}

// OwnershipLedger executes secondary-market purchases.
type OwnershipLedger interface {
	TransferOnPurchase(ctx context.Context, listingID, buyerAccountID, buyerWallet, txHash string) (*models.Listing, *models.PurchaseEvent, error)
}

// EligibilityChecker verifies claim eligibility against a tree export.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, address, contractAddress string, chainID types.ChainID, export *merkle.Export) (*merkle.EligibilityResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	payouts    PayoutReader
	ledger     OwnershipLedger
	verifiers  map[types.ChainID]EligibilityChecker
	cache      *storage.QueryCache
	config     *config.Config
	logger     *logging.Logger
}

// NewServer creates a new API server instance. The query cache is optional
// and may be nil.
func NewServer(
	cfg *config.Config,
	payouts PayoutReader,
	ledger OwnershipLedger,
	verifiers map[types.ChainID]EligibilityChecker,
	cache *storage.QueryCache,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		payouts:   payouts,
		ledger:    ledger,
		verifiers: verifiers,
		cache:     cache,
		config:    cfg,
		logger:    logger.WithComponent("api-server"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Claim surfaces
	api.HandleFunc("/rewards/{wallet}/claimable", s.handleGetClaimable).Methods("GET")
	api.HandleFunc("/rewards/payouts/{id}/claimed", s.handleMarkClaimed).Methods("POST")
	api.HandleFunc("/eligibility/{wallet}", s.handleCheckEligibility).Methods("GET")

	// Marketplace surfaces
	api.HandleFunc("/listings/{id}/purchase", s.handlePurchaseListing).Methods("POST")
}

// Router returns the configured router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rewards-settlement",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
