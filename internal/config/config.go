package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/internal/core/ports"
	alertsmanager "github.com/lockstep-labs/chand/internal/infrastructure/alertsmanager"
	"github.com/lockstep-labs/chand/internal/infrastructure/db"
	inmemorylivestore "github.com/lockstep-labs/chand/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/lockstep-labs/chand/internal/infrastructure/live-store/redis"
	"github.com/lockstep-labs/chand/internal/infrastructure/payout/webhook"
	timescheduler "github.com/lockstep-labs/chand/internal/infrastructure/scheduler/gocron"
	secp256k1verifier "github.com/lockstep-labs/chand/internal/infrastructure/verifier/secp256k1"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	supportedEventDbs = supportedType{
		"watermill": {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

const redacted = "••••••"

type Config struct {
	Datadir           string
	Port              uint32
	NoTLS             bool
	LogLevel          int
	HeartbeatInterval int64

	DbType            string
	EventDbType       string
	DbDir             string
	DbUrl             string
	LiveStoreType     string
	RedisUrl          string
	RedisNumOfRetries int

	OwnerPubkey       string
	SwapPruneInterval int64
	SwapRetention     int64

	AlertManagerURL       string
	PayoutWebhookURL      string
	OtelCollectorEndpoint string
	OtelPushInterval      int64

	owner      chanlib.Address
	repo       ports.RepoManager
	svc        application.Service
	adminSvc   application.AdminService
	verifier   ports.SignatureVerifier
	scheduler  ports.SchedulerService
	liveStore  ports.LiveStore
	alerts     ports.Alerts
	payoutHook ports.PayoutHook
}

func (c *Config) String() string {
	clone := *c
	if clone.DbUrl != "" {
		clone.DbUrl = redacted
	}
	if clone.RedisUrl != "" {
		clone.RedisUrl = redacted
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir           = btcutil.AppDataDir("chand", false)
	DefaultPort              = 7171
	defaultDbType            = "badger"
	defaultEventDbType       = "watermill"
	defaultLiveStoreType     = "inmemory"
	defaultRedisNumOfRetries = 5
	defaultLogLevel          = 4
	defaultNoTLS             = true
	defaultSwapPruneInterval = 300   // seconds
	defaultSwapRetention     = 86400 // 24 hours
	defaultOtelPushInterval  = 10    // seconds
	defaultHeartbeatInterval = 60    // seconds
)

// env returns a list of strings prefixed with `CHAND_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("CHAND_%s", value)
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
		Usage: "Port to listen on for gRPC and HTTP requests",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	NoTLS = &cli.BoolFlag{
		Usage: "Disable TLS and serve plaintext h2c",
		Name:  "no-tls", EnvVars: env("NO_TLS"),
		Value: defaultNoTLS,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	HeartbeatInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between heartbeats sent on idle event streams",
		Name:  "heartbeat-interval", EnvVars: env("HEARTBEAT_INTERVAL"),
		Value: int64(defaultHeartbeatInterval),
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (badger, sqlite, postgres)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if CHAND_DB_TYPE is set to postgres",
		Name:  "pg-url", EnvVars: env("PG_URL"),
	}

	EventDbType = &cli.StringFlag{
		Usage: "Event publisher type (watermill)",
		Name:  "event-db-type", EnvVars: env("EVENT_DB_TYPE"),
		Value: defaultEventDbType,
	}

	LiveStoreType = &cli.StringFlag{
		Usage: "Execution lock backend (inmemory, redis)",
		Name:  "live-store-type", EnvVars: env("LIVE_STORE_TYPE"),
		Value: defaultLiveStoreType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis connection url if CHAND_LIVE_STORE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisNumOfRetries = &cli.IntFlag{
		Usage: "Number of retries when releasing the redis execution lock",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisNumOfRetries,
	}

	OwnerPubkey = &cli.StringFlag{
		Usage: "Hex encoded compressed public key of the system owner, receiving released " +
			"funds that belong to no participant",
		Name: "owner-pubkey", EnvVars: env("OWNER_PUBKEY"),
		Required: true,
	}

	SwapPruneInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between runs of the finished swaps janitor",
		Name:  "swap-prune-interval", EnvVars: env("SWAP_PRUNE_INTERVAL"),
		Value: int64(defaultSwapPruneInterval),
	}

	SwapRetention = &cli.Int64Flag{
		Usage: "How long (in seconds) a finished swap is kept after its timeout",
		Name:  "swap-retention", EnvVars: env("SWAP_RETENTION"),
		Value: int64(defaultSwapRetention),
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "Alertmanager endpoint for dispute and withdrawal alerts",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}

	PayoutWebhookURL = &cli.StringFlag{
		Usage: "Endpoint notified of the funds released by every operation",
		Name:  "payout-webhook-url", EnvVars: env("PAYOUT_WEBHOOK_URL"),
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint (OTLP over HTTP)",
		Name:  "otel-collector-endpoint", EnvVars: env("OTEL_COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between OpenTelemetry metric pushes",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: int64(defaultOtelPushInterval),
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	NoTLS,
	LogLevel,
	HeartbeatInterval,
	DbType,
	DbUrl,
	EventDbType,
	LiveStoreType,
	RedisUrl,
	RedisNumOfRetries,
	OwnerPubkey,
	SwapPruneInterval,
	SwapRetention,
	AlertManagerURL,
	PayoutWebhookURL,
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

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		Port:                  uint32(c.Uint(Port.Name)),
		NoTLS:                 c.Bool(NoTLS.Name),
		LogLevel:              c.Int(LogLevel.Name),
		HeartbeatInterval:     c.Int64(HeartbeatInterval.Name),
		DbType:                c.String(DbType.Name),
		EventDbType:           c.String(EventDbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		LiveStoreType:         c.String(LiveStoreType.Name),
		RedisUrl:              redisUrl,
		RedisNumOfRetries:     c.Int(RedisNumOfRetries.Name),
		OwnerPubkey:           c.String(OwnerPubkey.Name),
		SwapPruneInterval:     c.Int64(SwapPruneInterval.Name),
		SwapRetention:         c.Int64(SwapRetention.Name),
		AlertManagerURL:       c.String(AlertManagerURL.Name),
		PayoutWebhookURL:      c.String(PayoutWebhookURL.Name),
		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
	}, nil
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

// Validate checks the config values and builds every service the app
// depends on.
func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf(
			"event db type not supported, please select one of: %s",
			supportedEventDbs,
		)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s",
			supportedLiveStores,
		)
	}
	if c.LogLevel < int(log.PanicLevel) || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("invalid log level, must be between 0 and 6")
	}
	if c.SwapPruneInterval <= 0 {
		return fmt.Errorf("invalid swap prune interval, must be greater than 0")
	}
	if c.SwapRetention < 0 {
		return fmt.Errorf("invalid swap retention, must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval, must be greater than 0")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval <= 0 {
		return fmt.Errorf("invalid otel push interval, must be greater than 0")
	}

	owner, err := parseOwner(c.OwnerPubkey)
	if err != nil {
		return err
	}
	c.owner = owner

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.verifierService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	if err := c.payoutService(); err != nil {
		return err
	}
	if err := c.adminService(); err != nil {
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

func (c *Config) AdminService() application.AdminService {
	return c.adminSvc
}

func (c *Config) Verifier() ports.SignatureVerifier {
	return c.verifier
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return fmt.Errorf("failed to create db dir: %s", err)
		}
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, true}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}
	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	var liveStoreSvc ports.LiveStore
	var err error
	switch c.LiveStoreType {
	case "inmemory":
		liveStoreSvc = inmemorylivestore.NewLiveStore()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb, c.RedisNumOfRetries)
	default:
		err = fmt.Errorf("unknown liveStore type")
	}

	if err != nil {
		return err
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) verifierService() error {
	c.verifier = secp256k1verifier.NewVerifier()
	return nil
}

func (c *Config) schedulerService() error {
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL, nil)
	return nil
}

func (c *Config) payoutService() error {
	if c.PayoutWebhookURL == "" {
		return nil
	}

	c.payoutHook = webhook.NewPayoutHook(c.PayoutWebhookURL)
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil || c.liveStore == nil || c.verifier == nil || c.scheduler == nil {
		return fmt.Errorf("config not validated")
	}

	svc, err := application.NewService(
		c.repo, c.verifier, c.liveStore, c.scheduler, c.alerts, c.payoutHook,
		nil, c.owner,
		time.Duration(c.SwapPruneInterval)*time.Second,
		time.Duration(c.SwapRetention)*time.Second,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func (c *Config) adminService() error {
	c.adminSvc = application.NewAdminService(c.repo, c.liveStore)
	return nil
}

func parseOwner(pubkey string) (chanlib.Address, error) {
	if pubkey == "" {
		return chanlib.Address{}, fmt.Errorf("missing owner pubkey")
	}
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return chanlib.Address{}, fmt.Errorf("invalid owner pubkey format, must be hex")
	}
	key, err := btcec.ParsePubKey(buf)
	if err != nil {
		return chanlib.Address{}, fmt.Errorf("invalid owner pubkey: %s", err)
	}
	return chanlib.AddressFromPubKey(key), nil
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
