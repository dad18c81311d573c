package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
symbols: [BTC/USDT, ETH/USDT]
exchanges_param:
  kraken:
    mode: single
    symbols: [BTC/USDT, ETH/USDT]
  binance:
    mode: batch
    symbols: [BTC/USDT]
    batch_limit: 5
symbols_param:
  BTC/USDT:
    exchanges: [kraken, binance]
    base_coin: BTC
    quote_coin: USDT
cache_endpoint: redis://localhost:6379
bot_token: tok
bot_chat_id: chat1
role: primary
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_ParsesAllTopLevelFields(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Symbols)
	require.Equal(t, RolePrimary, cfg.Role)
	require.Equal(t, "tok", cfg.BotToken)
	require.Equal(t, "chat1", cfg.BotChatID)
	require.Len(t, cfg.ExchangesParam, 2)
}

func TestLoad_AppliesDefaultExpirySecondsWhenUnset(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, defaultExpireBookOrdersSeconds, cfg.ExpireBookOrdersSeconds)
	require.Equal(t, defaultExpireDealEventsSeconds, cfg.ExpireDealEventsSeconds)
}

func TestLoad_DefaultsRoleToSecondaryWhenUnset(t *testing.T) {
	path := writeTemp(t, `symbols: [BTC/USDT]`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, RoleSecondary, cfg.Role)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_ExchangeConfigs_TranslatesExchangesParam(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	ecs := cfg.ExchangeConfigs()
	require.Len(t, ecs, 2)

	byVenue := make(map[string]int)
	for _, ec := range ecs {
		byVenue[ec.VenueID] = len(ec.Symbols)
	}
	require.Equal(t, 2, byVenue["kraken"])
	require.Equal(t, 1, byVenue["binance"])
}

func TestConfig_AvailableVenueIDs_CollectsFromSymbolsParam(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	ids := cfg.AvailableVenueIDs()
	require.ElementsMatch(t, []string{"kraken", "binance"}, ids)
}
