package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/application"
	"github.com/tokenmarket/marketd/internal/core/ports"
	"github.com/tokenmarket/marketd/internal/infrastructure/db"
	badgerdb "github.com/tokenmarket/marketd/internal/infrastructure/db/badger"
	watermilldb "github.com/tokenmarket/marketd/internal/infrastructure/db/watermill"
	inmemorylivestore "github.com/tokenmarket/marketd/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/tokenmarket/marketd/internal/infrastructure/live-store/redis"
	"github.com/urfave/cli/v2"
)

var (
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedEventPublishers = supportedType{
		"inmemory": {},
		"postgres": {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

type Config struct {
	Datadir     string
	Port        uint32
	LogLevel    int
	EnablePprof bool

	DbType             string
	DbDir              string
	DbUrl              string
	EventPublisherType string
	EventDbUrl         string
	LiveStoreType      string
	RedisUrl           string
	RedisLockTTL       time.Duration
	RedisNumOfRetries  int
	HeartbeatInterval  int64

	OtelCollectorEndpoint string
	OtelPushInterval      int64

	Operator      common.Address
	LedgerAddress common.Address
	ListingFee    uint64

	repo      ports.RepoManager
	liveStore ports.LiveStore
	publisher ports.EventPublisher
	svc       application.Service
}

func (c *Config) String() string {
	clone := *c
	if clone.DbUrl != "" {
		clone.DbUrl = "••••••"
	}
	if clone.EventDbUrl != "" {
		clone.EventDbUrl = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir            = btcutil.AppDataDir("marketd", false)
	DefaultPort               = 7080
	defaultLogLevel           = 4
	defaultDbType             = "badger"
	defaultEventPublisherType = "inmemory"
	defaultLiveStoreType      = "inmemory"
	defaultRedisLockTTL       = 10 * time.Second
	defaultRedisNumOfRetries  = 50
	defaultHeartbeatInterval  = 30 // seconds
	// 0.0025 ether in wei
	defaultListingFee       = uint64(2500000000000000)
	defaultEnablePprof      = false
	defaultOtelPushInterval = int64(10) // seconds
)

// env returns a list of strings prefixed with `MARKETD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("MARKETD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Port = &cli.UintFlag{
		Usage: "Port to listen on",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (postgres, sqlite, badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if MARKETD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	EventPublisherType = &cli.StringFlag{
		Usage: "Event publisher type (inmemory, postgres)",
		Name:  "event-publisher-type", EnvVars: env("EVENT_PUBLISHER_TYPE"),
		Value: defaultEventPublisherType,
	}

	EventDbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if MARKETD_EVENT_PUBLISHER_TYPE is set to postgres",
		Name:  "pg-event-db-url", EnvVars: env("PG_EVENT_DB_URL"),
	}

	LiveStoreType = &cli.StringFlag{
		Usage: "Live store type (redis, inmemory)",
		Name:  "live-store-type", EnvVars: env("LIVE_STORE_TYPE"),
		Value: defaultLiveStoreType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if MARKETD_LIVE_STORE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisLockTTL = &cli.DurationFlag{
		Usage: "How long the redis ledger lock is held before expiring",
		Name:  "redis-lock-ttl", EnvVars: env("REDIS_LOCK_TTL"),
		Value: defaultRedisLockTTL,
	}

	RedisNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of attempts to acquire the redis ledger lock",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisNumOfRetries,
	}

	HeartbeatInterval = &cli.IntFlag{
		Usage: "Event stream heartbeat interval in seconds",
		Name:  "heartbeat-interval", EnvVars: env("HEARTBEAT_INTERVAL"),
		Value: defaultHeartbeatInterval,
	}

	Operator = &cli.StringFlag{
		Usage: "Address of the marketplace operator, the only one allowed to change the listing fee",
		Name:  "operator", EnvVars: env("OPERATOR"),
	}

	LedgerAddress = &cli.StringFlag{
		Usage: "Address identifying the ledger itself",
		Name:  "ledger-address", EnvVars: env("LEDGER_ADDRESS"),
		DefaultText: "address created by the operator with nonce 0",
	}

	ListingFee = &cli.Uint64Flag{
		Usage: "Listing fee in wei applied when the ledger is first created",
		Name:  "listing-fee", EnvVars: env("LISTING_FEE"),
		Value: defaultListingFee,
	}

	EnablePprof = &cli.BoolFlag{
		Usage: "Expose pprof endpoints under /debug/pprof",
		Name:  "enable-pprof", EnvVars: env("ENABLE_PPROF"),
		Value: defaultEnablePprof,
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint, tracing and metrics are disabled if empty",
		Name:  "collector-endpoint", EnvVars: env("COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "OpenTelemetry push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: defaultOtelPushInterval,
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	LogLevel,
	DbType,
	DbUrl,
	EventPublisherType,
	EventDbUrl,
	LiveStoreType,
	RedisUrl,
	RedisLockTTL,
	RedisNumOfRetries,
	HeartbeatInterval,
	Operator,
	LedgerAddress,
	ListingFee,
	EnablePprof,
	OtelCollectorEndpoint,
	OtelPushInterval,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var eventDbUrl string
	if c.String(EventPublisherType.Name) == "postgres" {
		eventDbUrl = c.String(EventDbUrl.Name)
		if eventDbUrl == "" {
			return nil, fmt.Errorf(
				"event publisher type set to 'postgres' but event db url is missing",
			)
		}
	}

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	operatorStr := c.String(Operator.Name)
	if operatorStr == "" {
		return nil, fmt.Errorf("missing operator address")
	}
	if !common.IsHexAddress(operatorStr) {
		return nil, fmt.Errorf("invalid operator address %s", operatorStr)
	}
	operator := common.HexToAddress(operatorStr)

	ledgerAddress := DefaultLedgerAddress(operator)
	if addr := c.String(LedgerAddress.Name); addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid ledger address %s", addr)
		}
		ledgerAddress = common.HexToAddress(addr)
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		Port:                  uint32(c.Uint(Port.Name)),
		LogLevel:              c.Int(LogLevel.Name),
		EnablePprof:           c.Bool(EnablePprof.Name),
		DbType:                c.String(DbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		EventPublisherType:    c.String(EventPublisherType.Name),
		EventDbUrl:            eventDbUrl,
		LiveStoreType:         c.String(LiveStoreType.Name),
		RedisUrl:              redisUrl,
		RedisLockTTL:          c.Duration(RedisLockTTL.Name),
		RedisNumOfRetries:     c.Int(RedisNumOfRetries.Name),
		HeartbeatInterval:     c.Int64(HeartbeatInterval.Name),
		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
		Operator:              operator,
		LedgerAddress:         ledgerAddress,
		ListingFee:            c.Uint64(ListingFee.Name),
	}, nil
}

// DefaultLedgerAddress returns the address of the first contract deployed by
// the operator.
func DefaultLedgerAddress(operator common.Address) common.Address {
	return crypto.CreateAddress(operator, 0)
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedEventPublishers.supports(c.EventPublisherType) {
		return fmt.Errorf(
			"event publisher type not supported, please select one of: %s",
			supportedEventPublishers,
		)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s",
			supportedLiveStores,
		)
	}
	if c.Operator == (common.Address{}) {
		return fmt.Errorf("missing operator address")
	}
	if c.LedgerAddress == (common.Address{}) {
		return fmt.Errorf("missing ledger address")
	}
	if c.Operator == c.LedgerAddress {
		return fmt.Errorf("ledger address must differ from operator address")
	}
	if c.LiveStoreType == "redis" {
		if c.RedisLockTTL < time.Second {
			return fmt.Errorf("invalid redis lock ttl, must be at least 1 second")
		}
		if c.RedisNumOfRetries < 1 {
			return fmt.Errorf("invalid redis num of retries, must be at least 1")
		}
	}
	if c.HeartbeatInterval < 1 {
		return fmt.Errorf("invalid heartbeat interval, must be at least 1 second")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval < 1 {
		return fmt.Errorf("invalid otel push interval, must be at least 1 second")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.eventPublisher(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	if c.repo != nil {
		return nil
	}

	var dataStoreConfig []interface{}
	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, badgerdb.NewLogger()}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, true}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	if c.liveStore != nil {
		return nil
	}

	switch c.LiveStoreType {
	case "inmemory":
		c.liveStore = inmemorylivestore.NewLiveStore()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		c.liveStore = redislivestore.NewLiveStore(rdb, c.RedisLockTTL, c.RedisNumOfRetries)
	default:
		return fmt.Errorf("unknown live store type")
	}
	return nil
}

func (c *Config) eventPublisher() error {
	if c.publisher != nil {
		return nil
	}

	var config []interface{}
	if c.EventPublisherType == "postgres" {
		config = []interface{}{c.EventDbUrl}
	}

	publisher, err := watermilldb.NewService(c.EventPublisherType, config...)
	if err != nil {
		return err
	}
	c.publisher = publisher
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil || c.liveStore == nil || c.publisher == nil {
		return fmt.Errorf("config not validated")
	}

	svc, err := application.NewService(
		c.repo, c.liveStore, c.publisher, c.Operator, c.LedgerAddress, c.ListingFee,
	)
	if err != nil {
		return err
	}

	log.Debugf("ledger service created for operator %s", c.Operator.Hex())
	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
