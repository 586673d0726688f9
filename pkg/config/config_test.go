package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
)

const sampleYAML = `
log:
  level: debug
  format: json
pricer:
  steps: 500
  lattice_workers: 2
service:
  workers: 8
  request_timeout: 3s
  max_quote_age: 30s
feed:
  source: simulated
  interval: 250ms
markets:
  NDX:
    spot: 200
    rate: 0.04
    dividend: 0.01
    vol: 0.25
instruments:
  - symbol: NDX_P190_B
    underlying: NDX
    payoff: put
    strike: 190
    style: bermudan
    expiry: 126
    times: [63, 126]
    qty: -3
    multiplier: 50
kafka:
  brokers: ["k1:9092"]
node_id: 7
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, option.DefaultSteps, cfg.Pricer.Steps)
	assert.Equal(t, []string{"SPX"}, cfg.Underlyings())
	assert.Len(t, cfg.Instruments, 2)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "pricer.yaml", sampleYAML)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 500, cfg.Pricer.Steps)
	assert.Equal(t, 2, cfg.Pricer.LatticeWorkers)
	assert.Equal(t, uint64(1), cfg.Pricer.Seed, "unset fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Service.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "pricer", cfg.Kafka.GroupID)

	// markets 整体替换，不与默认的 SPX 合并
	assert.Equal(t, map[string]market.Params{"NDX": {Spot: 200, Rate: 0.04, Dividend: 0.01, Vol: 0.25}}, cfg.Markets)
	require.Len(t, cfg.Instruments, 1)
	in := cfg.Instruments[0]
	assert.Equal(t, "bermudan", in.Style)
	assert.Equal(t, []float64{63, 126}, in.Times)
	assert.Equal(t, 50.0, in.Multiplier)

	qc := cfg.QuoterConfig()
	assert.Equal(t, 8, qc.Workers)
	assert.Equal(t, 30*time.Second, qc.MaxQuoteAge)
	assert.Equal(t, 500, qc.Pricer.Steps)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvMySQLDSN, "root:pw@tcp(db:3306)/pricer")
	t.Setenv(EnvKafkaBrokers, " k1:9092, ,k2:9092 ")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeFile(t, "pricer.yaml", sampleYAML), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "root:pw@tcp(db:3306)/pricer", cfg.MySQL.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	env := writeFile(t, "test.env", "PRICER_REDIS_ADDR=cache:6379\nPRICER_NATS_URL=nats://bus:4222\n")
	t.Setenv(EnvRedisAddr, "")
	os.Unsetenv(EnvRedisAddr)
	t.Setenv(EnvNATSURL, "nats://already-set:4222")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	// 已存在的环境变量不被 .env 覆盖
	assert.Equal(t, "nats://already-set:4222", cfg.NATS.URL)
}

func TestLoad_Errors(t *testing.T) {
	noEnv := filepath.Join(t.TempDir(), "missing.env")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "pricer: [1, 2"), noEnv)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "feed.yaml", "feed:\n  source: nats\n"), noEnv)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "steps.yaml", "pricer:\n  steps: 0\n"), noEnv)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "node.yaml", "node_id: 4096\n"), noEnv)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
