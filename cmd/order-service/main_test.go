package main

import (
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

func fromMap(env map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestReadConfigFromEnv_EmptyEnvironment(t *testing.T) {
	cfg, warnings := readConfigFromEnv(fromMap(nil))
	if len(warnings) > 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !reflect.DeepEqual(cfg, app.DefaultConfig()) {
		t.Fatalf("config differs from defaults: %#v", cfg)
	}
}

func TestReadConfigFromEnv_Overrides(t *testing.T) {
	cfg, warnings := readConfigFromEnv(fromMap(map[string]string{
		envHTTPAddr:                    ":18080",
		envMetricsAddr:                 ":19090",
		envRequestTimeout:              "3s",
		envStorageDriver:               " Postgres",
		envPostgresDSN:                 "  postgres://shop@db:5432/shop  ",
		envPostgresAutoMigrate:         "n",
		envMongoURI:                    "mongodb://mongo:27017",
		envMongoDatabase:               "shop",
		envRedisAddr:                   "redis:6379",
		envRedisDB:                     "4",
		envProductCacheTTL:             "90s",
		envKafkaBrokers:                " k1:9092,,k2:9092 ",
		envKafkaClientID:               "shop-orders",
		envJWTSecret:                   "dev-secret",
		envJWTIssuer:                   "shop-auth",
		envSMTPHost:                    "mail.internal",
		envSMTPPort:                    "1025",
		envSMTPFrom:                    "no-reply@shop.test",
		envTransitionPolicy:            "strict",
		envSeedDemoData:                "on",
		envOutboxPollInterval:          "750ms",
		envOutboxBatchSize:             "16",
		envOutboxMaxAttempts:           "9",
		envOutboxRetryDelay:            "0s",
		envIdempotencyTTL:              "6h",
		envIdempotencyCleanupInterval:  "15m",
		envIdempotencyCleanupBatchSize: "250",
	}))
	if len(warnings) > 0 {
		t.Fatalf("warnings = %v", warnings)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"http addr", cfg.HTTPAddr, ":18080"},
		{"metrics addr", cfg.MetricsAddr, ":19090"},
		{"request timeout", cfg.RequestTimeout, 3 * time.Second},
		{"driver is lowercased", cfg.StorageDriver, app.StorageDriverPostgres},
		{"dsn is trimmed", cfg.PostgresDSN, "postgres://shop@db:5432/shop"},
		{"auto migrate", cfg.PostgresAutoMigrate, false},
		{"mongo database", cfg.MongoDatabase, "shop"},
		{"redis db", cfg.RedisDB, 4},
		{"product cache ttl", cfg.ProductCacheTTL, 90 * time.Second},
		{"kafka client", cfg.KafkaClientID, "shop-orders"},
		{"jwt issuer", cfg.JWTIssuer, "shop-auth"},
		{"smtp port", cfg.SMTP.Port, 1025},
		{"smtp enabled", cfg.SMTP.Enabled(), true},
		{"policy", cfg.TransitionPolicy, "strict"},
		{"seed", cfg.SeedDemoData, true},
		{"outbox poll", cfg.OutboxPollInterval, 750 * time.Millisecond},
		{"outbox batch", cfg.OutboxBatchSize, 16},
		{"outbox attempts", cfg.OutboxMaxAttempts, 9},
		{"outbox retry delay", cfg.OutboxRetryDelay, time.Duration(0)},
		{"idempotency ttl", cfg.IdempotencyTTL, 6 * time.Hour},
		{"sweep interval", cfg.IdempotencyCleanupInterval, 15 * time.Minute},
		{"sweep batch", cfg.IdempotencyCleanupBatchSize, 250},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !slices.Equal(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("kafka brokers = %v", cfg.KafkaBrokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReadConfigFromEnv_BadValuesKeepDefaults(t *testing.T) {
	bad := map[string]string{
		envRequestTimeout:              "later",
		envPostgresAutoMigrate:         "maybe",
		envRedisDB:                     "-3",
		envProductCacheTTL:             "0s",
		envSMTPPort:                    "twenty-five",
		envSeedDemoData:                "2",
		envOutboxPollInterval:          "0",
		envOutboxBatchSize:             "-5",
		envOutboxMaxAttempts:           "x",
		envOutboxRetryDelay:            "-1ms",
		envIdempotencyTTL:              "forever",
		envIdempotencyCleanupInterval:  "0s",
		envIdempotencyCleanupBatchSize: "0",
	}

	cfg, warnings := readConfigFromEnv(fromMap(bad))
	if len(warnings) != len(bad) {
		t.Fatalf("got %d warnings for %d bad values: %v", len(warnings), len(bad), warnings)
	}
	for _, w := range warnings {
		if !strings.HasPrefix(w, "STOREFRONT_") {
			t.Errorf("warning must name the variable: %q", w)
		}
	}
	if !reflect.DeepEqual(cfg, app.DefaultConfig()) {
		t.Fatalf("bad values leaked into config: %#v", cfg)
	}
}

func TestReadConfigFromEnv_BlankValuesAreIgnored(t *testing.T) {
	cfg, warnings := readConfigFromEnv(fromMap(map[string]string{
		envHTTPAddr:       "   ",
		envRedisDB:        "",
		envSeedDemoData:   " ",
		envRequestTimeout: "",
	}))
	if len(warnings) > 0 || !reflect.DeepEqual(cfg, app.DefaultConfig()) {
		t.Fatalf("blank values must be treated as unset: %v %#v", warnings, cfg)
	}
}

func TestParseBool(t *testing.T) {
	for raw, want := range map[string]bool{"1": true, " Yes ": true, "ON": true, "y": true, "0": false, "no": false, "Off": false} {
		got, err := parseBool(raw)
		if err != nil || got != want {
			t.Errorf("parseBool(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := parseBool("enabled"); err == nil {
		t.Error("parseBool must reject unknown words")
	}
}

func TestParseNumbers(t *testing.T) {
	if n, err := parseInt(" 8 ", positiveInt, "must be > 0"); err != nil || n != 8 {
		t.Errorf("parseInt = %d, %v", n, err)
	}
	if _, err := parseInt("0", positiveInt, "must be > 0"); err == nil || !strings.Contains(err.Error(), "must be > 0") {
		t.Errorf("parseInt must report the rule, got %v", err)
	}
	if n, err := parseInt("-2", nil, ""); err != nil || n != -2 {
		t.Errorf("parseInt without rule = %d, %v", n, err)
	}

	if d, err := parseDuration("1m30s", positiveDuration, "must be > 0"); err != nil || d != 90*time.Second {
		t.Errorf("parseDuration = %s, %v", d, err)
	}
	if _, err := parseDuration("-1s", nonNegativeDuration, "must be >= 0"); err == nil {
		t.Error("parseDuration must apply the rule")
	}
	if _, err := parseDuration("90", nil, ""); err == nil {
		t.Error("parseDuration must require a unit")
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(" ,, "); got != nil {
		t.Fatalf("blank list = %v, want nil", got)
	}
	if got := splitList("a, b ,c"); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitList = %v", got)
	}
}
