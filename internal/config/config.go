package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"nftlend-backend/internal/domain/protocol"
)

type Config struct {
	AppPort string `yaml:"app_port"`
	AppEnv  string `yaml:"app_env"`

	DBDriver    string `yaml:"db_driver"`
	MySQLHost   string `yaml:"mysql_host"`
	MySQLPort   string `yaml:"mysql_port"`
	MySQLDB     string `yaml:"mysql_db"`
	MySQLUser   string `yaml:"mysql_user"`
	MySQLPass   string `yaml:"mysql_pass"`
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`

	RedisAddr       string `yaml:"redis_addr"`
	RedisDB         int    `yaml:"redis_db"`
	IdempTTLSecs    int    `yaml:"idempotency_ttl_seconds"`
	DistributedLock bool   `yaml:"distributed_lock"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Protocol Protocol `yaml:"protocol"`

	OracleMaxAge time.Duration `yaml:"oracle_max_age"`

	// BenefitWebhooks maps benefit target addresses to HTTP endpoints.
	BenefitWebhooks map[string]string `yaml:"benefit_webhooks"`
}

// Protocol holds the lending parameters.
type Protocol struct {
	Owner            string        `yaml:"owner"`
	FeeCollector     string        `yaml:"fee_collector"`
	ProtocolFeeBps   uint32        `yaml:"protocol_fee_bps"`
	MinInterestBps   uint32        `yaml:"min_interest_rate_bps"`
	MaxInterestBps   uint32        `yaml:"max_interest_rate_bps"`
	MaxOfferValidity time.Duration `yaml:"max_offer_validity"`
	MaxLoanDuration  time.Duration `yaml:"max_loan_duration"`
	AllowSelfDealing bool          `yaml:"allow_self_dealing"`
}

func (p Protocol) OwnerAddress() common.Address        { return common.HexToAddress(p.Owner) }
func (p Protocol) FeeCollectorAddress() common.Address { return common.HexToAddress(p.FeeCollector) }

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func defaults() *Config {
	return &Config{
		AppPort:   "8080",
		AppEnv:    "development",
		DBDriver:  "mysql",
		MySQLHost: "mysql",
		MySQLPort: "3306",
		MySQLDB:   "nftlend",
		MySQLUser: "nftlend",
		MySQLPass: "nftlend",

		SQLitePath:   "nftlend.db",
		RedisAddr:    "redis:6379",
		IdempTTLSecs: 300,
		LogLevel:     "info",

		Protocol: Protocol{
			ProtocolFeeBps:   1000,
			MinInterestBps:   100,
			MaxInterestBps:   10000,
			MaxOfferValidity: 30 * 24 * time.Hour,
			MaxLoanDuration:  5 * 365 * 24 * time.Hour,
		},
		OracleMaxAge: time.Hour,
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	c := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.AppPort = getenv("APP_PORT", c.AppPort)
	c.AppEnv = getenv("APP_ENV", c.AppEnv)
	c.DBDriver = strings.ToLower(getenv("DB_DRIVER", c.DBDriver))
	c.MySQLHost = getenv("MYSQL_HOST", c.MySQLHost)
	c.MySQLPort = getenv("MYSQL_PORT", c.MySQLPort)
	c.MySQLDB = getenv("MYSQL_DB", c.MySQLDB)
	c.MySQLUser = getenv("MYSQL_USER", c.MySQLUser)
	c.MySQLPass = getenv("MYSQL_PASS", c.MySQLPass)
	c.PostgresDSN = getenv("POSTGRES_DSN", c.PostgresDSN)
	c.SQLitePath = getenv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getenv("LOG_FILE", c.LogFile)
	c.Protocol.Owner = getenv("OWNER_ADDRESS", c.Protocol.Owner)
	c.Protocol.FeeCollector = getenv("FEE_COLLECTOR_ADDRESS", c.Protocol.FeeCollector)

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("IDEMPOTENCY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IdempTTLSecs = n
		}
	}

	var err error
	if c.DistributedLock, err = envBool("DISTRIBUTED_LOCK", c.DistributedLock); err != nil {
		return err
	}
	if c.Protocol.AllowSelfDealing, err = envBool("ALLOW_SELF_DEALING", c.Protocol.AllowSelfDealing); err != nil {
		return err
	}
	if c.Protocol.ProtocolFeeBps, err = envBps("PROTOCOL_FEE_BPS", c.Protocol.ProtocolFeeBps); err != nil {
		return err
	}
	if c.Protocol.MinInterestBps, err = envBps("MIN_INTEREST_RATE_BPS", c.Protocol.MinInterestBps); err != nil {
		return err
	}
	if c.Protocol.MaxInterestBps, err = envBps("MAX_INTEREST_RATE_BPS", c.Protocol.MaxInterestBps); err != nil {
		return err
	}
	if c.Protocol.MaxOfferValidity, err = envDuration("MAX_OFFER_VALIDITY", c.Protocol.MaxOfferValidity); err != nil {
		return err
	}
	if c.Protocol.MaxLoanDuration, err = envDuration("MAX_LOAN_DURATION", c.Protocol.MaxLoanDuration); err != nil {
		return err
	}
	if c.OracleMaxAge, err = envDuration("ORACLE_MAX_AGE", c.OracleMaxAge); err != nil {
		return err
	}
	if v := os.Getenv("BENEFIT_WEBHOOKS"); v != "" {
		hooks, err := parseWebhooks(v)
		if err != nil {
			return err
		}
		c.BenefitWebhooks = hooks
	}
	return nil
}

func envBool(k string, d bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d, fmt.Errorf("invalid %s %q: %w", k, v, err)
	}
	return b, nil
}

func envBps(k string, d uint32) (uint32, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return d, fmt.Errorf("invalid %s %q: %w", k, v, err)
	}
	return uint32(n), nil
}

func envDuration(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d, fmt.Errorf("invalid %s %q: %w", k, v, err)
	}
	return dur, nil
}

// parseWebhooks reads "0xTarget=https://host/path,0xOther=...".
func parseWebhooks(v string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, url, ok := strings.Cut(pair, "=")
		if !ok || !common.IsHexAddress(addr) || url == "" {
			return nil, fmt.Errorf("invalid BENEFIT_WEBHOOKS entry %q", pair)
		}
		out[common.HexToAddress(addr).Hex()] = url
	}
	return out, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("missing POSTGRES_DSN")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if !common.IsHexAddress(c.Protocol.Owner) || c.Protocol.OwnerAddress() == (common.Address{}) {
		return fmt.Errorf("invalid OWNER_ADDRESS %q", c.Protocol.Owner)
	}
	if !common.IsHexAddress(c.Protocol.FeeCollector) || c.Protocol.FeeCollectorAddress() == (common.Address{}) {
		return fmt.Errorf("invalid FEE_COLLECTOR_ADDRESS %q", c.Protocol.FeeCollector)
	}
	if c.Protocol.ProtocolFeeBps > 10000 {
		return fmt.Errorf("PROTOCOL_FEE_BPS %d exceeds 10000", c.Protocol.ProtocolFeeBps)
	}
	if c.Protocol.MinInterestBps > c.Protocol.MaxInterestBps {
		return fmt.Errorf("MIN_INTEREST_RATE_BPS %d above MAX_INTEREST_RATE_BPS %d",
			c.Protocol.MinInterestBps, c.Protocol.MaxInterestBps)
	}
	if c.Protocol.MaxOfferValidity <= 0 {
		return errors.New("MAX_OFFER_VALIDITY must be positive")
	}
	if c.Protocol.MaxLoanDuration < time.Second || c.Protocol.MaxLoanDuration > maxLoanDurationCap {
		return fmt.Errorf("MAX_LOAN_DURATION %s outside [1s, %s]", c.Protocol.MaxLoanDuration, maxLoanDurationCap)
	}
	if c.OracleMaxAge <= 0 {
		return errors.New("ORACLE_MAX_AGE must be positive")
	}
	return nil
}

// maxLoanDurationCap keeps start+duration far from int64 overflow.
const maxLoanDurationCap = 100 * 365 * 24 * time.Hour

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// DSN returns the connection string for the selected driver.
func (c *Config) DSN() string {
	switch c.DBDriver {
	case "postgres":
		return c.PostgresDSN
	case "sqlite":
		return c.SQLitePath
	default:
		return c.MySQLDSN()
	}
}

// Params converts the protocol section into engine parameters.
func (c *Config) Params() protocol.Params {
	p := c.Protocol
	return protocol.Params{
		Addresses:        protocol.DefaultAddresses(),
		FeeCollector:     p.FeeCollectorAddress(),
		ProtocolFeeBps:   p.ProtocolFeeBps,
		MinInterestBps:   p.MinInterestBps,
		MaxInterestBps:   p.MaxInterestBps,
		MaxOfferValidity: int64(p.MaxOfferValidity / time.Second),
		MaxLoanDuration:  int64(p.MaxLoanDuration / time.Second),
		AllowSelfDealing: p.AllowSelfDealing,
	}
}
