package app

import (
	"log/slog"
	"time"

	"github.com/attaboy/bankroll/internal/auth"
	"github.com/attaboy/bankroll/internal/guard"
	"github.com/attaboy/bankroll/internal/handler"
	adminhandler "github.com/attaboy/bankroll/internal/handler/admin"
	"github.com/attaboy/bankroll/internal/infra"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Platform    *Platform
	Pool        *pgxpool.Pool // nil when running without a database
	Hub         *infra.EventHub
	Snapshotter handler.Snapshotter
	JWTMgr      *auth.JWTManager
	KeeperMgr   *auth.KeeperAuthManager
	Logger      *slog.Logger

	CORSOrigins     string
	StreamKeepAlive time.Duration
	PlayRateLimit   int
	PlayRateWindow  time.Duration
	PlayKeyTTL      time.Duration
	HealthTimeout   time.Duration
	FaucetEnabled   bool
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	p := deps.Platform
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Guards
	playLimiter := guard.NewRateLimiter(deps.PlayRateLimit, deps.PlayRateWindow)
	playIdem := guard.NewIdempotencyGuard(deps.PlayKeyTTL)

	// Handlers
	wagerHandler := handler.NewWagerHandler(p.Games, playLimiter, playIdem, logger)
	playerHandler := handler.NewPlayerHandler(p.Bankroll, p.Book)
	vaultHandler := handler.NewVaultHandler(p.Vault)
	bankrollHandler := handler.NewBankrollHandler(p.Bankroll)
	streamHandler := handler.NewStreamHandler(deps.Hub, deps.StreamKeepAlive, logger)
	keeperHandler := handler.NewKeeperHandler(p.Coordinator, deps.Snapshotter)
	devHandler := handler.NewDevHandler(jwtMgr, deps.KeeperMgr, p.Book, logger)

	// Admin handlers
	bankrollAdmin := adminhandler.NewBankrollAdminHandler(p.Bankroll, logger)
	vaultAdmin := adminhandler.NewVaultAdminHandler(p.Vault)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Pool, p.Bankroll, deps.HealthTimeout))

	// Public read-only routes
	r.Get("/games", wagerHandler.ListGames)
	r.Get("/games/{gameID}/fee", wagerHandler.QuoteFee)
	r.Get("/games/{gameID}/max-wager", wagerHandler.MaxWager)
	r.Get("/bankroll/pools", bankrollHandler.Pools)
	r.Get("/bankroll/pools/{token}", bankrollHandler.Pool)
	r.Get("/vault/pools", vaultHandler.Pools)
	r.Get("/vault/pools/{token}", vaultHandler.Pool)
	r.Get("/vault/window", vaultHandler.Window)
	r.Get("/stream/{aggregate}/{id}", streamHandler.Aggregate)

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Post("/games/{gameID}/play", wagerHandler.Play)
		r.Get("/games/{gameID}/pending", wagerHandler.Pending)
		r.Post("/games/{gameID}/refund", wagerHandler.Refund)

		r.Get("/me/balance", playerHandler.Balance)
		r.Post("/me/allowances", playerHandler.Approve)
		r.Get("/me/suspension", playerHandler.Suspension)
		r.Post("/me/suspension", playerHandler.Suspend)
		r.Post("/me/suspension/extend", playerHandler.ExtendSuspension)
		r.Post("/me/suspension/permanent", playerHandler.Ban)
		r.Delete("/me/suspension", playerHandler.LiftSuspension)
		r.Get("/me/rewards", playerHandler.Rewards)
		r.Post("/me/rewards/claim", playerHandler.ClaimRewards)
		r.Get("/me/stream", streamHandler.Player)

		r.Get("/vault/pools/{token}/stake", vaultHandler.Stake)
		r.Post("/vault/pools/{token}/deposit", vaultHandler.Deposit)
		r.Post("/vault/pools/{token}/withdraw", vaultHandler.Withdraw)
		r.Post("/vault/pools/{token}/claim", vaultHandler.Claim)

		if deps.FaucetEnabled {
			r.Post("/dev/faucet", devHandler.Faucet)
		}
	})

	// Keeper routes (scoped HMAC tokens)
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateKeeper(deps.KeeperMgr, auth.ScopeDeliverRandomness))
		r.Get("/keeper/randomness/pending", keeperHandler.PendingRequests)
		r.Post("/keeper/randomness/deliver-due", keeperHandler.DeliverDue)
		r.Post("/keeper/randomness/{requestID}/deliver", keeperHandler.Deliver)
	})
	r.With(auth.AuthenticateKeeper(deps.KeeperMgr, auth.ScopeRefund)).
		Post("/keeper/games/{gameID}/refund/{player}", wagerHandler.RefundFor)
	r.With(auth.AuthenticateKeeper(deps.KeeperMgr, auth.ScopeSnapshot)).
		Post("/keeper/snapshot", keeperHandler.Snapshot)

	// Dev token issuing
	if deps.FaucetEnabled {
		r.Post("/dev/tokens", devHandler.IssueToken)
		r.Post("/dev/keeper-tokens", devHandler.IssueKeeperToken)
	}

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireCapability(auth.CapRead))
			r.Get("/audit", bankrollAdmin.Audit)
			r.Get("/games/{game}", bankrollAdmin.GetGame)
			r.Get("/bankroll/fees/{token}", bankrollAdmin.Fees)
			r.Get("/players/{player}/suspension", bankrollAdmin.Suspension)
			r.Get("/snapshots/{token}", keeperHandler.LatestSnapshot)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireCapability(auth.CapGames))
			r.Post("/games", bankrollAdmin.RegisterGame)
			r.Delete("/games/{game}", bankrollAdmin.RemoveGame)
			r.Put("/games/{game}/tokens/{token}", bankrollAdmin.SetTokenEnabled)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireCapability(auth.CapTreasury))
			r.Post("/bankroll/withdraw", bankrollAdmin.Withdraw)
			r.Post("/bankroll/fees/{token}/sweep", bankrollAdmin.SweepFees)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireCapability(auth.CapVault))
			r.Post("/vault/pools", vaultAdmin.AddPool)
			r.Put("/vault/pools/{token}/active", vaultAdmin.SetPoolActive)
			r.Put("/vault/pools/{token}/reward-rate", vaultAdmin.SetRewardRate)
			r.Post("/vault/pools/{token}/distribute", vaultAdmin.DistributeRewards)
			r.Post("/vault/pools/{token}/fund", vaultAdmin.FundRewards)
			r.Put("/vault/schedule", vaultAdmin.SetSchedule)
			r.Put("/vault/lock-period", vaultAdmin.SetLockPeriod)
			r.Put("/vault/performance-fee", vaultAdmin.SetPerformanceFee)
		})

		// Migration escape hatch
		r.With(auth.RequireCapability(auth.CapExecute)).Post("/bankroll/execute", bankrollAdmin.Execute)
	})

	return r
}
