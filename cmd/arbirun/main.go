// Command arbirun is the process entrypoint: it loads configuration, wires
// the venue registry, cache layer, ingestion scheduler, deal controller,
// notification pipeline and persistence sinks together, and also exposes
// the spec's interactive commands (balance, trade, preview-trade,
// transfer) as one-shot CLI invocations rather than a chat surface.
// Grounded on the teacher's cmd/cryptorun/main.go: a cobra root command,
// console-or-JSON zerolog output chosen by TTY detection, and subcommands
// sharing a small set of persistent flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fmenezes/anxiousbot/internal/cache"
	"github.com/fmenezes/anxiousbot/internal/config"
	"github.com/fmenezes/anxiousbot/internal/deal"
	"github.com/fmenezes/anxiousbot/internal/httpapi"
	"github.com/fmenezes/anxiousbot/internal/ingestion"
	"github.com/fmenezes/anxiousbot/internal/metrics"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/notify"
	"github.com/fmenezes/anxiousbot/internal/persistence"
	"github.com/fmenezes/anxiousbot/internal/persistence/postgres"
	"github.com/fmenezes/anxiousbot/internal/venue"
	"github.com/fmenezes/anxiousbot/internal/venue/binance"
	"github.com/fmenezes/anxiousbot/internal/venue/fake"
	"github.com/fmenezes/anxiousbot/internal/venue/kraken"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "arbirun",
		Short:   "Cross-venue and triangular crypto arbitrage detector",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newBalanceCmd(&configPath),
		newTradeCmd(&configPath),
		newPreviewTradeCmd(&configPath),
		newTransferCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("arbirun exited with error")
		os.Exit(1)
	}
}

// newRegistry registers the venue families this build knows about and
// returns a Registry scoped to cfg's available venue IDs. Real venue
// families (kraken, binance) are registered unconditionally; any other
// venue ID configured falls back to the deterministic fake adapter so a
// demo or test configuration never fails to start for want of a real
// client, per spec.md section 7's "a venue with no credentials is simply
// unauthenticated, never a fatal startup error".
func newRegistry(cfg *config.Config) *venue.Registry {
	ids := cfg.AvailableVenueIDs()
	reg := venue.NewRegistry(ids)
	reg.Register("kraken", func(_ string, creds venue.Credentials) (venue.Client, error) {
		return kraken.NewAdapter(creds), nil
	})
	reg.Register("binance", func(_ string, creds venue.Credentials) (venue.Client, error) {
		return binance.NewAdapter(creds), nil
	})
	for _, id := range ids {
		if id == "kraken" || id == "binance" {
			continue
		}
		venueID := id
		reg.Register(venueID, func(string, venue.Credentials) (venue.Client, error) {
			return fake.NewAdapter(venueID), nil
		})
	}
	return reg
}

func newCacheStore(cfg *config.Config) cache.Store {
	if cfg.CacheEndpoint == "" {
		return cache.NewMemoryStore(time.Minute)
	}
	return cache.NewRedisStore(cache.RedisConfig{
		Addr: cfg.Cache.Redis.Addr,
		DB:   cfg.Cache.Redis.DB,
	})
}

func newDealSink(cfg *config.Config) (persistence.DealSink, error) {
	dir := cfg.CSVDir
	if dir == "" {
		dir = "."
	}
	sinks := persistence.MultiSink{persistence.NewCSVSink(dir, "")}
	if cfg.Postgres != nil && cfg.Postgres.DSN != "" {
		db, err := postgres.Open(postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("arbirun: opening postgres sink: %w", err)
		}
		sinks = append(sinks, postgres.NewDealSink(db, 5*time.Second))
	}
	return sinks, nil
}

func newSender(cfg *config.Config) notify.Sender {
	if cfg.BotToken == "" {
		return nil
	}
	var defaultChatID int64
	if cfg.BotChatID != "" {
		if parsed, err := strconv.ParseInt(cfg.BotChatID, 10, 64); err == nil {
			defaultChatID = parsed
		}
	}
	sender, err := notify.NewTelegramSender(cfg.BotToken, defaultChatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram sender setup failed, notifications will only be logged")
		return nil
	}
	return sender
}

func symbolConfigs(cfg *config.Config) []deal.SymbolConfig {
	out := make([]deal.SymbolConfig, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		sp, ok := cfg.SymbolsParam[symbol]
		if !ok {
			continue
		}
		out = append(out, deal.SymbolConfig{Symbol: symbol, BaseCoin: sp.BaseCoin, QuoteCoin: sp.QuoteCoin})
	}
	return out
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start ingestion, matching, and the notification/persistence pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), *configPath)
		},
	}
}

func runPipeline(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := newRegistry(cfg)
	for _, id := range cfg.AvailableVenueIDs() {
		if _, err := reg.Setup(ctx, id); err != nil {
			log.Warn().Err(err).Str("venue", id).Msg("venue setup failed")
		}
	}
	defer reg.CloseAll()

	store := newCacheStore(cfg)
	defer store.Close()

	metricsReg := metrics.NewRegistry(nil)

	sink, err := newDealSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	queue := notify.NewQueue(256)
	sender := newSender(cfg)
	var dispatcherDone chan struct{}
	if sender != nil {
		dispatcher := notify.NewDispatcher(queue, sender, log.Logger)
		dispatcherDone = make(chan struct{})
		go func() {
			dispatcher.Run(ctx)
			close(dispatcherDone)
		}()
	}

	scheduler := ingestion.NewScheduler(reg, store, metricsReg, cfg.ExchangeConfigs(), cfg.ExpireBookOrders(), log.Logger)
	plans := ingestion.DeriveAllPlans(cfg.ExchangeConfigs())
	go scheduler.Run(ctx, plans)

	controller := deal.NewController(reg, store, queue, sink, metricsReg, symbolConfigs(cfg), cfg.ExpireDealEvents(), log.Logger)
	go controller.Run(ctx)

	ready := func() bool { return len(reg.InitializedIDs()) > 0 }
	server, err := httpapi.NewServer(httpapi.DefaultServerConfig(), reg, ready, log.Logger)
	if err != nil {
		return fmt.Errorf("arbirun: starting http server: %w", err)
	}
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	log.Info().Str("role", string(cfg.Role)).Msg("arbirun started")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	if dispatcherDone != nil {
		<-dispatcherDone
	}
	return nil
}

// interactiveResult renders spec.md section 7's exact output contract:
// "OK" with per-coin balances, "error {message}", or "NOT_AUTH".
func interactiveResult(ctx context.Context, client venue.Client) string {
	if !client.Authenticated() {
		return "NOT_AUTH"
	}
	balances, err := client.FetchBalance(ctx)
	if err != nil {
		return "error " + err.Error()
	}
	out := "OK"
	for coin, amount := range balances {
		out += fmt.Sprintf(" %s=%s", coin, amount.StringFixed(2))
	}
	return out
}

func forEachVenue(configPath string, fn func(ctx context.Context, venueID string, client venue.Client)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg := newRegistry(cfg)
	ctx := context.Background()
	for _, id := range cfg.AvailableVenueIDs() {
		client, err := reg.Setup(ctx, id)
		if err != nil {
			fmt.Printf("%s: error %s\n", id, err.Error())
			continue
		}
		fn(ctx, id, client)
	}
	return nil
}

func newBalanceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Report per-venue account balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachVenue(*configPath, func(ctx context.Context, venueID string, client venue.Client) {
				fmt.Printf("%s: %s\n", venueID, interactiveResult(ctx, client))
			})
		},
	}
}

func newTradeCmd(configPath *string) *cobra.Command {
	var venueID, symbol, side, amount, price string
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Place a live order on a venue (out of scope: always reports an error)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderCommand(*configPath, venueID, symbol, side, amount, price, true)
		},
	}
	addOrderFlags(cmd, &venueID, &symbol, &side, &amount, &price)
	return cmd
}

func newPreviewTradeCmd(configPath *string) *cobra.Command {
	var venueID, symbol, side, amount, price string
	cmd := &cobra.Command{
		Use:   "preview-trade",
		Short: "Preview the fee and expected fill for a hypothetical order, without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderCommand(*configPath, venueID, symbol, side, amount, price, false)
		},
	}
	addOrderFlags(cmd, &venueID, &symbol, &side, &amount, &price)
	return cmd
}

func addOrderFlags(cmd *cobra.Command, venueID, symbol, side, amount, price *string) {
	cmd.Flags().StringVar(venueID, "venue", "", "venue ID")
	cmd.Flags().StringVar(symbol, "symbol", "", "trading pair, e.g. BTC/USDT")
	cmd.Flags().StringVar(side, "side", "buy", "buy or sell")
	cmd.Flags().StringVar(amount, "amount", "0", "order amount in base units")
	cmd.Flags().StringVar(price, "price", "0", "order price in quote units")
	cmd.MarkFlagRequired("venue")
	cmd.MarkFlagRequired("symbol")
}

func runOrderCommand(configPath, venueID, symbol, sideFlag, amountStr, priceStr string, submit bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg := newRegistry(cfg)
	ctx := context.Background()
	client, err := reg.Setup(ctx, venueID)
	if err != nil {
		fmt.Printf("error %s\n", err.Error())
		return nil
	}
	if !client.Authenticated() {
		fmt.Println("NOT_AUTH")
		return nil
	}

	side, amount, price, err := parseOrderArgs(sideFlag, amountStr, priceStr)
	if err != nil {
		fmt.Printf("error %s\n", err.Error())
		return nil
	}

	if !submit {
		fee, err := client.CalculateFee(ctx, symbol, side, amount, price)
		if err != nil {
			fmt.Printf("error %s\n", err.Error())
			return nil
		}
		fmt.Printf("OK fee=%s %s\n", fee.Amount.StringFixed(8), fee.Coin)
		return nil
	}

	id, err := client.CreateOrder(ctx, symbol, side, amount, price)
	if err != nil {
		fmt.Printf("error %s\n", err.Error())
		return nil
	}
	fmt.Printf("OK order=%s\n", id)
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

func parseOrderArgs(sideFlag, amountStr, priceStr string) (model.Side, decimal.Decimal, decimal.Decimal, error) {
	var side model.Side
	switch sideFlag {
	case "buy":
		side = model.SideBuy
	case "sell":
		side = model.SideSell
	default:
		return "", decimal.Zero, decimal.Zero, fmt.Errorf("invalid side %q, want buy or sell", sideFlag)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return "", decimal.Zero, decimal.Zero, err
	}
	price, err := parseAmount(priceStr)
	if err != nil {
		return "", decimal.Zero, decimal.Zero, err
	}
	return side, amount, price, nil
}

func newTransferCmd(configPath *string) *cobra.Command {
	var venueID, coin, amountStr, address string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Withdraw funds from a venue to an external address (out of scope: always reports an error)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			reg := newRegistry(cfg)
			ctx := context.Background()
			client, err := reg.Setup(ctx, venueID)
			if err != nil {
				fmt.Printf("error %s\n", err.Error())
				return nil
			}
			if !client.Authenticated() {
				fmt.Println("NOT_AUTH")
				return nil
			}
			amount, err := parseAmount(amountStr)
			if err != nil {
				fmt.Printf("error %s\n", err.Error())
				return nil
			}
			id, err := client.Withdraw(ctx, coin, amount, address)
			if err != nil {
				fmt.Printf("error %s\n", err.Error())
				return nil
			}
			fmt.Printf("OK withdrawal=%s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&venueID, "venue", "", "venue ID")
	cmd.Flags().StringVar(&coin, "coin", "", "coin to withdraw")
	cmd.Flags().StringVar(&amountStr, "amount", "0", "amount to withdraw")
	cmd.Flags().StringVar(&address, "address", "", "destination address")
	cmd.MarkFlagRequired("venue")
	cmd.MarkFlagRequired("coin")
	cmd.MarkFlagRequired("address")
	return cmd
}
