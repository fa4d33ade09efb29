package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner     = "0x00000000000000000000000000000000000000aa"
	testCollector = "0x00000000000000000000000000000000000000bb"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, uint32(1000), c.Protocol.ProtocolFeeBps)
	assert.Equal(t, uint32(100), c.Protocol.MinInterestBps)
	assert.Equal(t, uint32(10000), c.Protocol.MaxInterestBps)
	assert.Equal(t, 30*24*time.Hour, c.Protocol.MaxOfferValidity)
	assert.Equal(t, 5*365*24*time.Hour, c.Protocol.MaxLoanDuration)
	assert.False(t, c.Protocol.AllowSelfDealing)
	assert.Equal(t, 300, c.IdempTTLSecs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "SQLITE")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PROTOCOL_FEE_BPS", "250")
	t.Setenv("MAX_OFFER_VALIDITY", "48h")
	t.Setenv("MAX_LOAN_DURATION", "8760h")
	t.Setenv("ALLOW_SELF_DEALING", "true")
	t.Setenv("OWNER_ADDRESS", testOwner)
	t.Setenv("FEE_COLLECTOR_ADDRESS", testCollector)
	t.Setenv("BENEFIT_WEBHOOKS", "0x00000000000000000000000000000000000000cc=http://hooks.local/claim")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "/tmp/x.db", c.DSN())
	assert.Equal(t, 3, c.RedisDB)
	assert.Equal(t, uint32(250), c.Protocol.ProtocolFeeBps)
	assert.Equal(t, 48*time.Hour, c.Protocol.MaxOfferValidity)
	assert.Equal(t, 8760*time.Hour, c.Protocol.MaxLoanDuration)
	assert.True(t, c.Protocol.AllowSelfDealing)
	assert.Equal(t, "http://hooks.local/claim", c.BenefitWebhooks["0x00000000000000000000000000000000000000cc"])
	require.NoError(t, c.Validate())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROTOCOL_FEE_BPS", "lots")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
app_port: "9090"
db_driver: postgres
postgres_dsn: "host=db user=u dbname=n"
protocol:
  owner: "` + testOwner + `"
  fee_collector: "` + testCollector + `"
  protocol_fee_bps: 500
  max_offer_validity: 24h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_DRIVER", "")
	t.Setenv("APP_PORT", "7070")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", c.AppPort, "env wins over file")
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, uint32(500), c.Protocol.ProtocolFeeBps)
	assert.Equal(t, 24*time.Hour, c.Protocol.MaxOfferValidity)
	assert.Equal(t, uint32(100), c.Protocol.MinInterestBps, "defaults survive the file")
	require.NoError(t, c.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := defaults()
		c.Protocol.Owner = testOwner
		c.Protocol.FeeCollector = testCollector
		return c
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.MySQLPort = "notaport" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }, true},
		{"postgres without dsn", func(c *Config) { c.DBDriver = "postgres" }, true},
		{"missing owner", func(c *Config) { c.Protocol.Owner = "" }, true},
		{"fee above 100%", func(c *Config) { c.Protocol.ProtocolFeeBps = 10001 }, true},
		{"min above max", func(c *Config) { c.Protocol.MinInterestBps = 20000 }, true},
		{"zero validity", func(c *Config) { c.Protocol.MaxOfferValidity = 0 }, true},
		{"zero loan duration", func(c *Config) { c.Protocol.MaxLoanDuration = 0 }, true},
		{"loan duration above cap", func(c *Config) { c.Protocol.MaxLoanDuration = 200 * 365 * 24 * time.Hour }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	c := defaults()
	assert.Equal(t, "nftlend:nftlend@tcp(mysql:3306)/nftlend?multiStatements=true&parseTime=true&charset=utf8mb4,utf8", c.MySQLDSN())
}

func TestParams(t *testing.T) {
	c := defaults()
	c.Protocol.Owner = testOwner
	c.Protocol.FeeCollector = testCollector
	c.Protocol.MaxOfferValidity = 2 * time.Hour
	c.Protocol.AllowSelfDealing = true

	p := c.Params()
	assert.Equal(t, c.Protocol.FeeCollectorAddress(), p.FeeCollector)
	assert.Equal(t, uint32(1000), p.ProtocolFeeBps)
	assert.Equal(t, uint32(100), p.MinInterestBps)
	assert.Equal(t, uint32(10000), p.MaxInterestBps)
	assert.Equal(t, int64(7200), p.MaxOfferValidity)
	assert.Equal(t, int64(5*365*24*3600), p.MaxLoanDuration)
	assert.True(t, p.AllowSelfDealing)
	assert.NotEqual(t, p.Addresses.LoanEngine, p.Addresses.Vault)
}
