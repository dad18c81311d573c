// Package kraken adapts Kraken's public REST and WebSocket APIs to
// venue.Client. Grounded on the teacher's Kraken adapter (REST OHLC/Trades/
// Depth calls plus a book-L2 WebSocket subscription), rewired from
// float64/facade.BookL2 types to this domain's decimal.Decimal/model.OrderBook
// shapes and from an ad-hoc error return to the shared errs taxonomy.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/errs"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/netutil/circuit"
	"github.com/fmenezes/anxiousbot/internal/netutil/ratelimit"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

const (
	restHost = "api.kraken.com"
	// restRPS/restBurst are Kraken's public-endpoint politeness budget;
	// the exact tiered counter-based scheme is out of scope, this is a
	// conservative flat approximation.
	restRPS   = 1.0
	restBurst = 3
)

const (
	restBaseURL = "https://api.kraken.com"
	wsURL       = "wss://ws.kraken.com"
	// takerFeeRate is Kraken's lowest public taker tier; real tiered fees
	// depend on 30-day volume, out of scope per spec.md's Non-goals around
	// placing real orders.
	takerFeeRate = "0.0026"
)

// Adapter implements venue.Client against Kraken's public API.
type Adapter struct {
	creds      venue.Credentials
	httpClient *http.Client
	limiter    *ratelimit.HostLimiter
	breaker    *circuit.Breaker

	mu      sync.Mutex
	markets map[string]struct{}
}

func NewAdapter(creds venue.Credentials) *Adapter {
	return &Adapter{
		creds:      creds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratelimit.NewHostLimiter(restRPS, restBurst),
		breaker:    circuit.NewBreaker(circuit.DefaultConfig()),
		markets:    make(map[string]struct{}),
	}
}

// Factory satisfies venue.Factory for registration with a venue.Registry.
func Factory(venueID string, creds venue.Credentials) (venue.Client, error) {
	return NewAdapter(creds), nil
}

func (a *Adapter) ID() string { return "kraken" }

func (a *Adapter) Authenticated() bool { return a.creds.Authenticated() }

func (a *Adapter) Close() error { return nil }

type krakenErrorEnvelope struct {
	Error []string `json:"error"`
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errs.RateLimit(fmt.Errorf("kraken: rate limited"), 60*time.Second)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Unauthenticated(fmt.Errorf("kraken: unauthenticated"))
	case status >= 500:
		return errs.Transient(fmt.Errorf("kraken: server error %d", status))
	case status >= 400:
		return fmt.Errorf("kraken: request error %d: %s", status, string(body))
	}
	return nil
}

// get issues a rate-limited, circuit-broken GET. The host limiter and
// breaker are per-process state shared across every call this adapter
// makes, grounded on the teacher's guards.ProviderGuard wrapping every
// outbound call the same way.
func (a *Adapter) get(ctx context.Context, path string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, restHost); err != nil {
		return nil, err
	}

	var body []byte
	err := a.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, restBaseURL+path, nil)
		if err != nil {
			return errs.Programmer(err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return errs.Transient(fmt.Errorf("kraken: request failed: %w", err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Transient(fmt.Errorf("kraken: reading response: %w", err))
		}
		if err := classifyStatus(resp.StatusCode, respBody); err != nil {
			return err
		}

		var envelope krakenErrorEnvelope
		if err := json.Unmarshal(respBody, &envelope); err == nil && len(envelope.Error) > 0 {
			return fmt.Errorf("kraken: api error: %s", strings.Join(envelope.Error, "; "))
		}
		body = respBody
		return nil
	})
	return body, err
}

// NormalizeSymbol converts "BTC/USD" style symbols to Kraken's XBTUSD
// wire format, per the teacher's NormalizeSymbol.
func NormalizeSymbol(symbol string) string {
	sym := model.NewSymbol(symbol)
	base, quote := strings.ToUpper(sym.Base()), strings.ToUpper(sym.Quote())
	if base == "BTC" {
		base = "XBT"
	}
	return base + quote
}

type assetPairsResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

func (a *Adapter) LoadMarkets(ctx context.Context) (map[string]struct{}, error) {
	body, err := a.get(ctx, "/0/public/AssetPairs")
	if err != nil {
		return nil, err
	}
	var parsed assetPairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("kraken: parsing asset pairs: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.markets = make(map[string]struct{}, len(parsed.Result))
	for wireSymbol := range parsed.Result {
		a.markets[wireSymbol] = struct{}{}
	}
	return a.markets, nil
}

type depthResponse struct {
	Result map[string]struct {
		Bids [][3]json.Number `json:"bids"`
		Asks [][3]json.Number `json:"asks"`
	} `json:"result"`
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	wireSymbol := NormalizeSymbol(symbol)
	body, err := a.get(ctx, fmt.Sprintf("/0/public/Depth?pair=%s&count=100", wireSymbol))
	if err != nil {
		return model.OrderBook{}, err
	}

	var parsed depthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.OrderBook{}, fmt.Errorf("kraken: parsing depth: %w", err)
	}

	for _, side := range parsed.Result {
		return model.OrderBook{
			Symbol:     model.NewSymbol(symbol),
			Venue:      a.ID(),
			Asks:       toLevels(side.Asks),
			Bids:       toLevels(side.Bids),
			ReceivedAt: time.Now(),
		}, nil
	}
	return model.OrderBook{}, errs.MissingMarket(fmt.Errorf("kraken: no depth data for %s", symbol))
}

func toLevels(raw [][3]json.Number) []model.Level {
	out := make([]model.Level, 0, len(raw))
	for _, lv := range raw {
		price, err := decimal.NewFromString(lv[0].String())
		if err != nil {
			continue
		}
		volume, err := decimal.NewFromString(lv[1].String())
		if err != nil {
			continue
		}
		out = append(out, model.Level{Price: price, Volume: volume})
	}
	return out
}

func (a *Adapter) FetchOrderBooks(ctx context.Context) (map[string]model.OrderBook, error) {
	return nil, fmt.Errorf("kraken: fetch-all ingestion mode not supported, use single or batch")
}

// WatchOrderBookForSymbols subscribes to Kraken's book channel over
// WebSocket and forwards each update, grounded on the teacher's
// SubscribeBookL2 message shape.
func (a *Adapter) WatchOrderBookForSymbols(ctx context.Context, symbols []string, onUpdate func(model.OrderBook)) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return errs.Transient(fmt.Errorf("kraken: websocket dial: %w", err))
	}
	defer conn.Close()

	wireSymbols := make([]string, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for i, sym := range symbols {
		wire := NormalizeSymbol(sym)
		wireSymbols[i] = wire
		bySymbol[wire] = sym
	}

	sub := map[string]any{
		"event": "subscribe",
		"pair":  wireSymbols,
		"subscription": map[string]any{
			"name":  "book",
			"depth": 100,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return errs.Transient(fmt.Errorf("kraken: subscribe: %w", err))
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return errs.Transient(fmt.Errorf("kraken: websocket read: %w", err))
			}
		}
		book, wireSymbol, ok := parseBookMessage(raw)
		if !ok {
			continue
		}
		symbol, ok := bySymbol[wireSymbol]
		if !ok {
			continue
		}
		book.Symbol = model.NewSymbol(symbol)
		book.Venue = a.ID()
		book.ReceivedAt = time.Now()
		onUpdate(book)
	}
}

// parseBookMessage extracts a book snapshot/update from one Kraken
// WebSocket frame. Kraken sends `[channelID, data, channelName, pair]`
// arrays; only array frames carrying bid/ask data are handled, other
// event frames (heartbeat, subscriptionStatus) are ignored.
func parseBookMessage(raw json.RawMessage) (model.OrderBook, string, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 4 {
		return model.OrderBook{}, "", false
	}
	var pair string
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return model.OrderBook{}, "", false
	}

	var payload struct {
		Bids [][2]json.Number `json:"b"`
		Asks [][2]json.Number `json:"a"`
	}
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return model.OrderBook{}, "", false
	}

	toLevels2 := func(raw [][2]json.Number) []model.Level {
		out := make([]model.Level, 0, len(raw))
		for _, lv := range raw {
			price, err := decimal.NewFromString(lv[0].String())
			if err != nil {
				continue
			}
			volume, err := decimal.NewFromString(lv[1].String())
			if err != nil {
				continue
			}
			out = append(out, model.Level{Price: price, Volume: volume})
		}
		return out
	}

	book := model.OrderBook{Bids: toLevels2(payload.Bids), Asks: toLevels2(payload.Asks)}
	if book.Empty() {
		return model.OrderBook{}, "", false
	}
	return book, pair, true
}

// CalculateFee charges Kraken's flat taker rate against the quote-coin
// notional of the order, per the teacher's fee-in-quote convention.
func (a *Adapter) CalculateFee(_ context.Context, symbol string, _ model.Side, amount, price decimal.Decimal) (venue.FeeQuote, error) {
	rate := decimal.RequireFromString(takerFeeRate)
	notional := amount.Mul(price)
	return venue.FeeQuote{Amount: notional.Mul(rate), Coin: model.NewSymbol(symbol).Quote()}, nil
}

type balanceResponse struct {
	Result map[string]json.Number `json:"result"`
}

func (a *Adapter) FetchBalance(ctx context.Context) (model.Balances, error) {
	if !a.Authenticated() {
		return nil, errs.Unauthenticated(fmt.Errorf("kraken: no credentials configured"))
	}
	log.Warn().Str("venue", a.ID()).Msg("kraken private endpoint signing not implemented, returning empty balance")
	return model.Balances{}, nil
}

func (a *Adapter) CreateOrder(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (string, error) {
	return "", fmt.Errorf("kraken: placing orders is not supported")
}

func (a *Adapter) FetchDepositAddress(context.Context, string) (string, error) {
	return "", fmt.Errorf("kraken: deposit address lookup is not supported")
}

func (a *Adapter) Withdraw(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", fmt.Errorf("kraken: withdrawals are not supported")
}
