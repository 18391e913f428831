package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Stake policies.
const (
	PolicyFixed      = "fixed"
	PolicyMartingale = "martingale"
	PolicySoros      = "soros"
)

// Broker modes.
const (
	BrokerLive  = "live"
	BrokerPaper = "paper"
)

// Config holds application configuration
type Config struct {
	// Broker connection
	BrokerMode     string `yaml:"broker_mode"`
	BrokerURL      string `yaml:"broker_url"`
	APIToken       string `yaml:"api_token"`
	Currency       string `yaml:"currency"`
	PongWait       int64  `yaml:"pong_wait"`   // seconds
	PingPeriod     int64  `yaml:"ping_period"` // seconds
	RequestTimeout int    `yaml:"request_timeout"`
	ReconnectDelay int    `yaml:"reconnect_delay"`
	// Market / signal
	Symbol        string  `yaml:"symbol"`
	WindowSize    int     `yaml:"window_size"`
	Strategy      string  `yaml:"strategy"`
	MinConfidence float64 `yaml:"min_confidence"`
	CooldownTicks int     `yaml:"cooldown_ticks"`
	// Contract
	DurationTicks      int     `yaml:"duration_ticks"`
	ContractSeconds    float64 `yaml:"contract_seconds"` // expected seconds per tick
	WatchdogMultiplier float64 `yaml:"watchdog_multiplier"`
	WatchdogGraceSec   int     `yaml:"watchdog_grace_sec"`
	// Stake sizing
	StakePolicy          string  `yaml:"stake_policy"`
	InitialBalance       float64 `yaml:"initial_balance"`
	InitialStake         float64 `yaml:"initial_stake"`
	MinStake             float64 `yaml:"min_stake"`
	MaxStake             float64 `yaml:"max_stake"`
	ProfitPercent        float64 `yaml:"profit_percent"` // payout profit on a win, percent of stake
	SorosLevel           int     `yaml:"soros_level"`
	WinsBeforeMartingale int     `yaml:"wins_before_martingale"`
	TargetProfit         float64 `yaml:"target_profit"` // 0 disables
	StopLoss             float64 `yaml:"stop_loss"`     // 0 disables
	WinRateWindow        int     `yaml:"win_rate_window"`
	MinWinRate           float64 `yaml:"min_win_rate"`
	StopOnTarget         bool    `yaml:"stop_on_target"`
	// Paper broker
	PaperStartPrice float64 `yaml:"paper_start_price"`
	PaperVolatility float64 `yaml:"paper_volatility"`
	PaperTickMs     int     `yaml:"paper_tick_ms"`
	PaperSeed       int64   `yaml:"paper_seed"`
	// Ledger
	LedgerDSN        string `yaml:"ledger_dsn"`
	LedgerFile       string `yaml:"ledger_file"`
	LedgerBufferSize int    `yaml:"ledger_buffer_size"`
	// Logging configuration
	LogFile       string `yaml:"log_file"`
	LogMaxSize    int    `yaml:"log_max_size"`    // megabytes
	LogMaxBackups int    `yaml:"log_max_backups"` // number of files
	LogMaxAge     int    `yaml:"log_max_age"`     // days
	LogCompress   bool   `yaml:"log_compress"`
	LogLevel      string `yaml:"log_level"`
	// Status server configuration
	StatusAddr string `yaml:"status_addr"`
	// Daemon configuration
	DaemonMode bool   `yaml:"daemon_mode"`
	PidFile    string `yaml:"pid_file"`
	Debug      bool   `yaml:"debug"`
}

// LoadConfig loads configuration from environment variables or uses defaults.
// A .env file in the working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		BrokerMode:     getEnv("BROKER_MODE", BrokerPaper),
		BrokerURL:      getEnv("BROKER_WS_URL", "wss://ws.derivws.com/websockets/v3?app_id=1089"),
		APIToken:       getEnv("BROKER_API_TOKEN", ""),
		Currency:       getEnv("CURRENCY", "USD"),
		PongWait:       70,
		PingPeriod:     30,
		RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 10),
		ReconnectDelay: getEnvAsInt("RECONNECT_DELAY", 5),

		Symbol:        getEnv("SYMBOL", "R_100"),
		WindowSize:    getEnvAsInt("WINDOW_SIZE", 50),
		Strategy:      getEnv("STRATEGY", "momentum_persistent"),
		MinConfidence: getEnvAsFloat("MIN_CONFIDENCE", 0.3),
		CooldownTicks: getEnvAsInt("COOLDOWN_TICKS", 0),

		DurationTicks:      getEnvAsInt("DURATION_TICKS", 5),
		ContractSeconds:    getEnvAsFloat("CONTRACT_SECONDS", 2),
		WatchdogMultiplier: getEnvAsFloat("WATCHDOG_MULTIPLIER", 3),
		WatchdogGraceSec:   getEnvAsInt("WATCHDOG_GRACE_SEC", 5),

		StakePolicy:          getEnv("STAKE_POLICY", PolicyFixed),
		InitialBalance:       getEnvAsFloat("INITIAL_BALANCE", 1000),
		InitialStake:         getEnvAsFloat("INITIAL_STAKE", 1),
		MinStake:             getEnvAsFloat("MIN_STAKE", 0.35),
		MaxStake:             getEnvAsFloat("MAX_STAKE", 100),
		ProfitPercent:        getEnvAsFloat("PROFIT_PERCENT", 90),
		SorosLevel:           getEnvAsInt("SOROS_LEVEL", 3),
		WinsBeforeMartingale: getEnvAsInt("WINS_BEFORE_MARTINGALE", 0),
		TargetProfit:         getEnvAsFloat("TARGET_PROFIT", 0),
		StopLoss:             getEnvAsFloat("STOP_LOSS", 0),
		WinRateWindow:        getEnvAsInt("WIN_RATE_WINDOW", 0),
		MinWinRate:           getEnvAsFloat("MIN_WIN_RATE", 0),
		StopOnTarget:         getEnvAsBool("STOP_ON_TARGET", true),

		PaperStartPrice: getEnvAsFloat("PAPER_START_PRICE", 1000),
		PaperVolatility: getEnvAsFloat("PAPER_VOLATILITY", 0.0005),
		PaperTickMs:     getEnvAsInt("PAPER_TICK_MS", 1000),
		PaperSeed:       int64(getEnvAsInt("PAPER_SEED", 0)),

		LedgerDSN:        getEnv("LEDGER_DSN", ""),
		LedgerFile:       getEnv("LEDGER_FILE", "data/trades.jsonl"),
		LedgerBufferSize: getEnvAsInt("LEDGER_BUFFER_SIZE", 256),

		// Logging defaults
		LogFile:       getEnv("LOG_FILE", "logs/trading_bot.log"),
		LogMaxSize:    10, // 10 MB
		LogMaxBackups: 5,  // 5 backup files
		LogMaxAge:     30, // 30 days
		LogCompress:   true,
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		// Status server defaults
		StatusAddr: getEnv("STATUS_ADDR", "127.0.0.1:6061"),
		// Daemon defaults
		DaemonMode: getEnvAsBool("DAEMON_MODE", false),
		PidFile:    getEnv("PID_FILE", "hurst-trader.pid"),
		Debug:      getEnvAsBool("DEBUG", false),
	}
}

// WatchdogTimeout is how long a placed contract may stay silent before its status is polled:
// durationTicks × contractSeconds × multiplier, plus a fixed grace period.
func (c *Config) WatchdogTimeout() time.Duration {
	secs := float64(c.DurationTicks) * c.ContractSeconds * c.WatchdogMultiplier
	return time.Duration(secs*float64(time.Second)) + time.Duration(c.WatchdogGraceSec)*time.Second
}

// RequestTimeoutDuration bounds a single broker request/response round trip.
func (c *Config) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	// Convert string to bool - "true", "1", "yes", "on" are considered true
	switch value {
	case "true", "1", "yes", "on", "True", "TRUE":
		return true
	default:
		return false
	}
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
