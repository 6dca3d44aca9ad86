package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseEnabled bool   `env:"DATABASE_ENABLED" envDefault:"false"`
	DatabaseURL     string `env:"DATABASE_URL"`
	PGHost          string `env:"PGHOST" envDefault:"localhost"`
	PGPort          int    `env:"PGPORT" envDefault:"5435"`
	PGUser          string `env:"PGUSER" envDefault:"bankroll"`
	PGPassword      string `env:"PGPASSWORD" envDefault:"bankroll"`
	PGDatabase      string `env:"PGDATABASE" envDefault:"bankroll"`
	MigrationsDir   string `env:"MIGRATIONS_DIR"`

	// Connection pool. The settlement path holds one connection per outbox
	// write; the snapshotter and relay each add one more.
	DBMaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns          int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"30s"`
	DBPingTimeout       time.Duration `env:"DB_PING_TIMEOUT" envDefault:"3s"`
	DBApplicationName   string        `env:"DB_APPLICATION_NAME" envDefault:"bankroll"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  time.Duration `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Keepers
	KeeperSecret   string        `env:"KEEPER_SECRET" envDefault:"change-me-in-production"`
	KeeperTokenTTL time.Duration `env:"KEEPER_TOKEN_TTL" envDefault:"1h"`

	// Server
	APIPort            int           `env:"API_PORT" envDefault:"3100"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	StreamKeepAlive    time.Duration `env:"STREAM_KEEPALIVE" envDefault:"15s"`
	HubBuffer          int           `env:"HUB_BUFFER" envDefault:"64"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"bankroll"`

	// Outbox relay
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Chain clock
	GenesisTime time.Time     `env:"GENESIS_TIME"`
	BlockTime   time.Duration `env:"BLOCK_TIME" envDefault:"12s"`

	// Accounts
	OwnerAddress    domain.Address `env:"OWNER_ADDRESS" envDefault:"0x00000000000000000000000000000000000000a0"`
	TreasuryAddress domain.Address `env:"TREASURY_ADDRESS" envDefault:"0x00000000000000000000000000000000000000a1"`
	RegistryAddress domain.Address `env:"REGISTRY_ADDRESS" envDefault:"0x00000000000000000000000000000000000000a2"`
	LedgerAddress   domain.Address `env:"LEDGER_ADDRESS" envDefault:"0x00000000000000000000000000000000000000b0"`
	VaultAddress    domain.Address `env:"VAULT_ADDRESS" envDefault:"0x00000000000000000000000000000000000000b1"`
	GatewayAddress  domain.Address `env:"GATEWAY_ADDRESS" envDefault:"0x00000000000000000000000000000000000000b2"`
	WrappedNative   domain.Address `env:"WRAPPED_NATIVE_ADDRESS" envDefault:"0x00000000000000000000000000000000000000c0"`
	RewardToken     domain.Address `env:"REWARD_TOKEN_ADDRESS" envDefault:"0x00000000000000000000000000000000000000c1"`
	GameAddress     domain.Address `env:"COINFLIP_GAME_ADDRESS" envDefault:"0x00000000000000000000000000000000000000d0"`
	GameCreator     domain.Address `env:"COINFLIP_CREATOR_ADDRESS"`

	// Tokens registered besides native, as address:symbol:decimals
	Tokens []string `env:"TOKENS" envSeparator:","`

	// Bankroll ledger
	ProtocolFeeBps     int64         `env:"PROTOCOL_FEE_BPS" envDefault:"200"`
	TreasuryShareBps   int64         `env:"TREASURY_SHARE_BPS" envDefault:"5000"`
	MaxCreatorShareBps int64         `env:"MAX_CREATOR_SHARE_BPS" envDefault:"1000"`
	GameCreatorBps     int64         `env:"COINFLIP_CREATOR_BPS" envDefault:"0"`
	RewardBps          int64         `env:"PLAY_REWARD_BPS" envDefault:"10"`
	MinRewardClaim     domain.Amount `env:"MIN_REWARD_CLAIM" envDefault:"1000000000000000"`
	SnapshotInterval   time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1m"`

	// Wager settlement
	RefundDelayBlocks  uint64        `env:"REFUND_DELAY_BLOCKS" envDefault:"200"`
	RiskFractionBps    int64         `env:"RISK_FRACTION_BPS" envDefault:"112"`
	MaxBets            uint32        `env:"MAX_BETS" envDefault:"100"`
	ReservePayout      bool          `env:"RESERVE_PAYOUT" envDefault:"true"`
	GasPrice           domain.Amount `env:"GAS_PRICE" envDefault:"1000000000"`
	CallbackGasBase    int64         `env:"CALLBACK_GAS_BASE" envDefault:"100000"`
	CallbackGasPerWord int64         `env:"CALLBACK_GAS_PER_WORD" envDefault:"20000"`
	L1DataCost         domain.Amount `env:"L1_DATA_COST" envDefault:"0"`
	L1MultiplierBps    int64         `env:"L1_MULTIPLIER_BPS" envDefault:"10000"`
	ProviderFee        domain.Amount `env:"PROVIDER_FEE" envDefault:"0"`
	OraclePrice        domain.Amount `env:"ORACLE_PRICE" envDefault:"100000000"`
	OracleDecimals     uint8         `env:"ORACLE_DECIMALS" envDefault:"8"`
	PlayRateLimit      int           `env:"PLAY_RATE_LIMIT" envDefault:"30"`
	PlayRateWindow     time.Duration `env:"PLAY_RATE_WINDOW" envDefault:"1m"`
	PlayIdempotencyTTL time.Duration `env:"PLAY_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Randomness
	RandomOrgAPIKey        string        `env:"RANDOM_ORG_API_KEY"`
	RandomnessDelay        time.Duration `env:"RANDOMNESS_DELAY" envDefault:"3s"`
	RandomnessPollInterval time.Duration `env:"RANDOMNESS_POLL_INTERVAL" envDefault:"500ms"`

	// Liquidity vault
	EpochRate              time.Duration  `env:"VAULT_EPOCH_RATE" envDefault:"168h"`
	ClaimRate              time.Duration  `env:"VAULT_CLAIM_RATE" envDefault:"336h"`
	ClaimWindow            time.Duration  `env:"VAULT_CLAIM_WINDOW" envDefault:"48h"`
	LockPeriod             time.Duration  `env:"VAULT_LOCK_PERIOD" envDefault:"168h"`
	PerformanceFeeBps      int64          `env:"VAULT_PERFORMANCE_FEE_BPS" envDefault:"1000"`
	PerformanceFeeReceiver domain.Address `env:"VAULT_PERFORMANCE_FEE_RECIPIENT"`
	MaxPerformanceFeeBps   int64          `env:"VAULT_MAX_PERFORMANCE_FEE_BPS" envDefault:"2000"`
	MaxWindowSearch        int            `env:"VAULT_MAX_WINDOW_SEARCH" envDefault:"64"`
	NativeRewardRate       domain.Amount  `env:"VAULT_NATIVE_REWARD_RATE" envDefault:"0"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
	FaucetEnabled         bool `env:"FAUCET_ENABLED" envDefault:"false"`
}

// LoadConfig loads optional .env files, then parses environment variables
// into a Config struct. Variables already set in the environment win.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.GenesisTime.IsZero() {
		cfg.GenesisTime = time.Now().UTC()
	}
	if cfg.GameCreator == "" {
		cfg.GameCreator = cfg.TreasuryAddress
	}
	if cfg.PerformanceFeeReceiver == "" {
		cfg.PerformanceFeeReceiver = cfg.TreasuryAddress
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if err := c.validateEconomics(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.KeeperSecret == "change-me-in-production" || len(c.KeeperSecret) < 32 {
		return fmt.Errorf("KEEPER_SECRET must be set to at least 32 characters")
	}
	if c.FaucetEnabled {
		return fmt.Errorf("FAUCET_ENABLED mints balances from nothing; only allowed with ALLOW_INSECURE_DEFAULTS=true")
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d)", c.DBMaxConns)
	}
	if c.DBPingTimeout <= 0 {
		return fmt.Errorf("DB_PING_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateEconomics() error {
	checks := []struct {
		name  string
		value int64
		max   int64
	}{
		{"PROTOCOL_FEE_BPS", c.ProtocolFeeBps, domain.BpsDenominator},
		{"TREASURY_SHARE_BPS", c.TreasuryShareBps, domain.BpsDenominator},
		{"MAX_CREATOR_SHARE_BPS", c.MaxCreatorShareBps, domain.BpsDenominator},
		{"COINFLIP_CREATOR_BPS", c.GameCreatorBps, c.MaxCreatorShareBps},
		{"PLAY_REWARD_BPS", c.RewardBps, domain.BpsDenominator},
		{"RISK_FRACTION_BPS", c.RiskFractionBps, domain.BpsDenominator},
		{"VAULT_MAX_PERFORMANCE_FEE_BPS", c.MaxPerformanceFeeBps, domain.BpsDenominator},
		{"VAULT_PERFORMANCE_FEE_BPS", c.PerformanceFeeBps, c.MaxPerformanceFeeBps},
	}
	for _, chk := range checks {
		if err := domain.ValidateBps(chk.value, chk.max, chk.name); err != nil {
			return err
		}
	}
	if c.EpochRate <= 0 || c.ClaimWindow <= 0 {
		return fmt.Errorf("VAULT_EPOCH_RATE and VAULT_CLAIM_WINDOW must be positive")
	}
	if _, err := c.TokenList(); err != nil {
		return err
	}
	if c.MaxBets == 0 {
		return fmt.Errorf("MAX_BETS must be at least 1")
	}
	if c.PlayIdempotencyTTL <= 0 {
		return fmt.Errorf("PLAY_IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

// TokenSpec is one entry of TOKENS.
type TokenSpec struct {
	Address  domain.Address
	Symbol   string
	Decimals uint8
}

// TokenList parses TOKENS.
func (c *Config) TokenList() ([]TokenSpec, error) {
	out := make([]TokenSpec, 0, len(c.Tokens))
	for _, raw := range c.Tokens {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("TOKENS entry %q: want address:symbol:decimals", raw)
		}
		addr := domain.NormalizeAddress(parts[0])
		if err := domain.ValidateAddress(addr); err != nil {
			return nil, fmt.Errorf("TOKENS entry %q: %w", raw, err)
		}
		dec, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil || dec > 36 {
			return nil, fmt.Errorf("TOKENS entry %q: bad decimals", raw)
		}
		out = append(out, TokenSpec{Address: addr, Symbol: parts[1], Decimals: uint8(dec)})
	}
	return out, nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
