// Package config loads the process configuration object described in
// spec.md section 6. Grounded on the teacher's internal/application
// config.go: os.ReadFile plus yaml.Unmarshal, one Load function per
// configuration shape, no defaulting magic beyond what the teacher does
// for its own CacheConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fmenezes/anxiousbot/internal/ingestion"
	"github.com/fmenezes/anxiousbot/internal/model"
)

// Role names whether this process is the primary, which hosts the
// interactive command surface, or a secondary, which only runs ingestion
// and deal detection, per spec.md section 6. arbirun's run command starts
// ingestion and the deal controller in both roles and reports the role in
// its startup log; the one-shot interactive subcommands do not check it.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// ExchangeParam is one venue's ingestion configuration, spec.md section
// 6's exchanges_param[venue].
type ExchangeParam struct {
	Mode       model.IngestionMode `yaml:"mode"`
	Symbols    []string            `yaml:"symbols"`
	BatchLimit int                 `yaml:"batch_limit"`
}

// SymbolParam is one symbol's trading configuration, spec.md section 6's
// symbols_param[symbol].
type SymbolParam struct {
	Exchanges     []string `yaml:"exchanges"`
	BaseCoin      string   `yaml:"base_coin"`
	QuoteCoin     string   `yaml:"quote_coin"`
	MarketcapRank int      `yaml:"marketcap_rank"`
}

// CacheConfig tunes the Cache Layer's Redis backend, modeled on the
// teacher's CacheConfig.Redis struct. Selecting Redis over the in-memory
// backend is driven by the top-level CacheEndpoint field (spec.md section
// 6), not by this struct's presence.
type CacheConfig struct {
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
		TLS  bool   `yaml:"tls"`
	} `yaml:"redis"`
}

// PostgresConfig is the Deal Controller's optional persistence sink,
// modeled on the teacher's internal/infrastructure/db.Config.
type PostgresConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnMaxLifetime converts the configured seconds into a time.Duration,
// matching the teacher's CacheConfig.DefaultTTL helper pattern.
func (p PostgresConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(p.ConnMaxLifetimeSeconds) * time.Second
}

// Config is the top-level configuration object, spec.md section 6.
type Config struct {
	Symbols        []string                 `yaml:"symbols"`
	ExchangesParam map[string]ExchangeParam `yaml:"exchanges_param"`
	SymbolsParam   map[string]SymbolParam   `yaml:"symbols_param"`

	CacheEndpoint           string `yaml:"cache_endpoint"`
	ExpireBookOrdersSeconds int    `yaml:"expire_book_orders"`
	ExpireDealEventsSeconds int    `yaml:"expire_deal_events"`

	BotToken  string `yaml:"bot_token"`
	BotChatID string `yaml:"bot_chat_id"`
	Role      Role   `yaml:"role"`

	Cache    CacheConfig     `yaml:"cache"`
	Postgres *PostgresConfig `yaml:"postgres"`

	CSVDir string `yaml:"csv_dir"`
}

const (
	defaultExpireBookOrdersSeconds = 60
	defaultExpireDealEventsSeconds = 60
)

// Load reads and parses the YAML file at path, applying the spec.md
// section 6 defaults for the two expiry durations when left at zero.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if c.ExpireBookOrdersSeconds <= 0 {
		c.ExpireBookOrdersSeconds = defaultExpireBookOrdersSeconds
	}
	if c.ExpireDealEventsSeconds <= 0 {
		c.ExpireDealEventsSeconds = defaultExpireDealEventsSeconds
	}
	if c.Role == "" {
		c.Role = RoleSecondary
	}
	return &c, nil
}

// ExpireBookOrders and ExpireDealEvents convert the configured seconds
// into time.Duration for direct use as cache TTLs.
func (c *Config) ExpireBookOrders() time.Duration {
	return time.Duration(c.ExpireBookOrdersSeconds) * time.Second
}

func (c *Config) ExpireDealEvents() time.Duration {
	return time.Duration(c.ExpireDealEventsSeconds) * time.Second
}

// ExchangeConfigs translates the configuration's exchanges_param map into
// ingestion.ExchangeConfig values, the shape the Ingestion Scheduler's
// plan deriver consumes.
func (c *Config) ExchangeConfigs() []ingestion.ExchangeConfig {
	out := make([]ingestion.ExchangeConfig, 0, len(c.ExchangesParam))
	for venueID, p := range c.ExchangesParam {
		out = append(out, ingestion.ExchangeConfig{
			VenueID:    venueID,
			Mode:       p.Mode,
			Symbols:    p.Symbols,
			BatchLimit: p.BatchLimit,
		})
	}
	return out
}

// AvailableVenueIDs collects every venue referenced by any symbol's
// exchanges list, the set spec.md section 4.1 calls available_ids.
func (c *Config) AvailableVenueIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, sp := range c.SymbolsParam {
		for _, venueID := range sp.Exchanges {
			if _, ok := seen[venueID]; !ok {
				seen[venueID] = struct{}{}
				ids = append(ids, venueID)
			}
		}
	}
	return ids
}
