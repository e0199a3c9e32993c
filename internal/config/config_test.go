package config_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tokenmarket/marketd/internal/config"
)

var operator = common.HexToAddress("0x1000000000000000000000000000000000000001")

func TestDefaultLedgerAddress(t *testing.T) {
	addr := config.DefaultLedgerAddress(operator)
	require.NotEqual(t, common.Address{}, addr)
	require.NotEqual(t, operator, addr)
	require.Equal(t, addr, config.DefaultLedgerAddress(operator))
}

func TestValidate(t *testing.T) {
	validConfig := func() *config.Config {
		return &config.Config{
			Datadir:            t.TempDir(),
			DbType:             "badger",
			EventPublisherType: "inmemory",
			LiveStoreType:      "inmemory",
			HeartbeatInterval:  30,
			RedisLockTTL:       10 * time.Second,
			RedisNumOfRetries:  10,
			Operator:           operator,
			LedgerAddress:      config.DefaultLedgerAddress(operator),
			ListingFee:         25,
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.DbDir = t.TempDir()
		require.NoError(t, cfg.Validate())

		svc, err := cfg.AppService()
		require.NoError(t, err)
		require.NotNil(t, svc)

		require.NoError(t, svc.Start())
		svc.Stop()
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name        string
			modify      func(*config.Config)
			expectedErr string
		}{
			{
				name:        "unsupported db",
				modify:      func(c *config.Config) { c.DbType = "mysql" },
				expectedErr: "db type not supported",
			},
			{
				name:        "unsupported event publisher",
				modify:      func(c *config.Config) { c.EventPublisherType = "kafka" },
				expectedErr: "event publisher type not supported",
			},
			{
				name:        "unsupported live store",
				modify:      func(c *config.Config) { c.LiveStoreType = "memcached" },
				expectedErr: "live store type not supported",
			},
			{
				name:        "missing operator",
				modify:      func(c *config.Config) { c.Operator = common.Address{} },
				expectedErr: "missing operator address",
			},
			{
				name:        "ledger is operator",
				modify:      func(c *config.Config) { c.LedgerAddress = operator },
				expectedErr: "ledger address must differ from operator address",
			},
			{
				name: "short redis lock ttl",
				modify: func(c *config.Config) {
					c.LiveStoreType = "redis"
					c.RedisLockTTL = time.Millisecond
				},
				expectedErr: "invalid redis lock ttl",
			},
			{
				name:        "no heartbeat",
				modify:      func(c *config.Config) { c.HeartbeatInterval = 0 },
				expectedErr: "invalid heartbeat interval",
			},
			{
				name: "collector without push interval",
				modify: func(c *config.Config) {
					c.OtelCollectorEndpoint = "localhost:4318"
					c.OtelPushInterval = 0
				},
				expectedErr: "invalid otel push interval",
			},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg := validConfig()
				f.modify(cfg)
				err := cfg.Validate()
				require.Error(t, err)
				require.ErrorContains(t, err, f.expectedErr)
			})
		}
	})

	t.Run("app service before validate", func(t *testing.T) {
		_, err := validConfig().AppService()
		require.Error(t, err)
	})
}
