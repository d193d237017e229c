package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/predictor"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// HTTPBridge is the real Bridge implementation: trading/history operations
// go over a retrying HTTP client, and the tick stream arrives over a
// websocket connection managed on its own goroutine — the vendor SDK's
// "dedicated thread" of §4.7, whose closed bars reach callers through one
// channel per subscribed symbol. The REST calls are synchronous; HTTPBridge
// does not use Dispatcher.
type HTTPBridge struct {
	baseURL string
	http    *retryablehttp.Client
	auth    *AuthManager
	limits  *RateLimiters
	cache   *MetadataCache
	log     *zap.Logger

	requestTimeout time.Duration
	wsURL          string

	mu        sync.RWMutex
	state     ConnectionState
	detectors map[string]*predictor.BarDetector
	barChans  map[string]chan types.Bar
	wsConn    *websocket.Conn
	wsCancel  context.CancelFunc
}

// tickMessage is the wire shape of one tick frame on the websocket stream.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"`
	Price  float64 `json:"price"`
}

// HTTPBridgeConfig configures an HTTPBridge.
type HTTPBridgeConfig struct {
	BaseURL        string
	WSURL          string
	Login          string
	Password       string
	Server         string
	RequestTimeout time.Duration
	TradingOpsRate float64
	HistoryOpsRate float64
	MetadataTTL    time.Duration
	Refresh        TokenRefresher
}

// noRetryKey marks a request context whose request must be sent at most once.
type noRetryKey struct{}

// NewHTTPBridge builds an HTTPBridge from cfg. The retryablehttp client
// retries failed GET requests (history, positions, account, symbol info)
// transparently; POST requests, which carry the order operations, are sent
// once and any failure is returned to the caller (§7: "do not auto-retry
// order ops").
func NewHTTPBridge(cfg HTTPBridgeConfig, log *zap.Logger) *HTTPBridge {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	tradingRate := cfg.TradingOpsRate
	if tradingRate <= 0 {
		tradingRate = DefaultTradingOpsRate
	}
	historyRate := cfg.HistoryOpsRate
	if historyRate <= 0 {
		historyRate = DefaultHistoryOpsRate
	}
	ttl := cfg.MetadataTTL
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}

	return &HTTPBridge{
		baseURL:        cfg.BaseURL,
		http:           client,
		auth:           NewAuthManager(cfg.Refresh, cfg.Login, cfg.Password, cfg.Server, DefaultAuthRefreshWindow),
		limits:         NewRateLimiters(tradingRate, historyRate),
		cache:          NewMetadataCache(ttl),
		log:            log,
		requestTimeout: timeout,
		wsURL:          cfg.WSURL,
		state:          StateDisconnected,
		detectors:      make(map[string]*predictor.BarDetector),
		barChans:       make(map[string]chan types.Bar),
	}
}

func (b *HTTPBridge) setState(s ConnectionState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// State reports the bridge's current connection lifecycle state.
func (b *HTTPBridge) State() ConnectionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Connect installs the bridge before any other SDK surface is touched
// (§4.7 ordering note; enforced by the Orchestrator calling this first).
// It authenticates and, if a stream URL is configured, opens the tick
// websocket and starts its read loop on a dedicated goroutine — the
// vendor SDK's own event-loop thread, in this transport's terms.
func (b *HTTPBridge) Connect(ctx context.Context) error {
	if _, err := b.auth.Token(ctx); err != nil {
		return err
	}
	if b.wsURL != "" {
		if err := b.connectStream(ctx); err != nil {
			return fmt.Errorf("tick stream connect: %w: %w", err, types.ErrConnectionLost)
		}
	}
	b.setState(StateConnected)
	return nil
}

func (b *HTTPBridge) connectStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return err
	}
	streamCtx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if b.wsConn != nil {
		b.wsConn.Close()
	}
	if b.wsCancel != nil {
		b.wsCancel()
	}
	b.wsConn = conn
	b.wsCancel = cancel
	b.mu.Unlock()

	go b.readLoop(streamCtx, conn)
	return nil
}

func (b *HTTPBridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var msg tickMessage
		if err := conn.ReadJSON(&msg); err != nil {
			b.log.Warn("tick stream read failed", zap.Error(err))
			b.handleTransportLoss()
			return
		}
		b.OnTick(msg.Symbol, msg.Time, msg.Price)
	}
}

// Disconnect tears down the bridge's background connections.
func (b *HTTPBridge) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsCancel != nil {
		b.wsCancel()
	}
	if b.wsConn != nil {
		b.wsConn.Close()
	}
	b.state = StateDisconnected
	return nil
}

// rateBucket selects which of the bridge's two independent token buckets
// (§4.7) a REST call is gated by.
type rateBucket int

const (
	bucketTrading rateBucket = iota
	bucketHistory
)

func (b *HTTPBridge) acquire(ctx context.Context, bucket rateBucket) error {
	switch bucket {
	case bucketHistory:
		return b.limits.AcquireHistory(ctx)
	default:
		return b.limits.AcquireTrading(ctx)
	}
}

func (b *HTTPBridge) doJSON(ctx context.Context, bucket rateBucket, method, path string, body, out any) error {
	if err := b.acquire(ctx, bucket); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	token, err := b.auth.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()
	if method != http.MethodGet {
		reqCtx = context.WithValue(reqCtx, noRetryKey{}, true)
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		b.handleTransportLoss()
		return fmt.Errorf("broker request failed: %w: %w", err, types.ErrConnectionLost)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		b.auth.Invalidate()
		return fmt.Errorf("broker rejected credentials: %w", types.ErrAuthenticationFailed)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broker returned %d: %s: %w", resp.StatusCode, string(data), types.ErrOrderRejected)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// handleTransportLoss transitions to RECONNECTING and starts the backoff
// reconnect loop in the background (§4.7 reconnection).
func (b *HTTPBridge) handleTransportLoss() {
	b.mu.Lock()
	already := b.state == StateReconnecting
	b.state = StateReconnecting
	b.mu.Unlock()
	if already {
		return
	}
	go b.reconnectLoop()
}

func (b *HTTPBridge) reconnectLoop() {
	backoff := DefaultReconnectBase
	for {
		time.Sleep(backoff)
		ctx, cancel := context.WithTimeout(context.Background(), b.requestTimeout)
		err := b.Connect(ctx)
		cancel()
		if err == nil {
			b.cache.InvalidateAll()
			b.log.Info("broker reconnected, metadata cache invalidated")
			return
		}
		b.log.Warn("broker reconnect attempt failed", zap.Error(err), zap.Duration("backoff", backoff))
		backoff *= 2
		if backoff > DefaultReconnectCap {
			backoff = DefaultReconnectCap
		}
	}
}

func (b *HTTPBridge) GetHistory(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	var bars []types.Bar
	path := fmt.Sprintf("/history?symbol=%s&tf=%d&count=%d", symbol, int64(tf), count)
	if err := b.doJSON(ctx, bucketHistory, http.MethodGet, path, nil, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// SubscribeBars registers a bar detector for symbol; ticks delivered over
// the websocket connection are fed through it and closed bars are pushed to
// the returned channel (§4.4, §4.7).
func (b *HTTPBridge) SubscribeBars(ctx context.Context, symbol string, tf types.Timeframe) (<-chan types.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan types.Bar, 64)
	b.barChans[symbol] = ch
	b.detectors[symbol] = predictor.NewBarDetector(symbol, tf)
	return ch, nil
}

// OnTick feeds one tick into the subscribed symbol's detector, pushing a
// closed bar to its channel when a boundary is crossed. Called by the
// websocket read loop (not part of the public Bridge contract).
func (b *HTTPBridge) OnTick(symbol string, epochSeconds int64, price float64) {
	b.mu.RLock()
	det, ok := b.detectors[symbol]
	ch := b.barChans[symbol]
	b.mu.RUnlock()
	if !ok {
		return
	}
	if bar, emitted := det.OnTick(epochSeconds, price); emitted {
		ch <- bar
	}
}

func (b *HTTPBridge) GetPositions(ctx context.Context) ([]types.RealPosition, error) {
	var positions []types.RealPosition
	if err := b.doJSON(ctx, bucketTrading, http.MethodGet, "/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (b *HTTPBridge) GetPosition(ctx context.Context, symbol string) (types.RealPosition, bool, error) {
	var pos types.RealPosition
	err := b.doJSON(ctx, bucketTrading, http.MethodGet, "/positions/"+symbol, nil, &pos)
	if err != nil {
		return types.RealPosition{}, false, err
	}
	return pos, pos.Ticket != 0, nil
}

func (b *HTTPBridge) OpenOrder(ctx context.Context, req OrderRequest) (types.OrderResult, error) {
	var result types.OrderResult
	if err := b.doJSON(ctx, bucketTrading, http.MethodPost, "/orders", req, &result); err != nil {
		return types.OrderResult{}, err
	}
	return result, nil
}

func (b *HTTPBridge) CloseOrder(ctx context.Context, ticket uint64) (types.OrderResult, error) {
	var result types.OrderResult
	path := fmt.Sprintf("/orders/%d/close", ticket)
	if err := b.doJSON(ctx, bucketTrading, http.MethodPost, path, nil, &result); err != nil {
		return types.OrderResult{}, err
	}
	return result, nil
}

func (b *HTTPBridge) ModifyOrder(ctx context.Context, ticket uint64, sl, tp float64) (types.OrderResult, error) {
	var result types.OrderResult
	path := fmt.Sprintf("/orders/%d/modify", ticket)
	body := struct{ SL, TP float64 }{sl, tp}
	if err := b.doJSON(ctx, bucketTrading, http.MethodPost, path, body, &result); err != nil {
		return types.OrderResult{}, err
	}
	return result, nil
}

func (b *HTTPBridge) GetAccount(ctx context.Context) (types.Account, error) {
	var account types.Account
	if err := b.doJSON(ctx, bucketTrading, http.MethodGet, "/account", nil, &account); err != nil {
		return types.Account{}, err
	}
	return account, nil
}

// GetSymbolInfo returns the cached value if fresh, otherwise fetches and
// refreshes the cache (§4.7 symbol metadata cache).
func (b *HTTPBridge) GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolMetadata, error) {
	if meta, ok := b.cache.Get(symbol); ok {
		return meta, nil
	}
	var meta types.SymbolMetadata
	if err := b.doJSON(ctx, bucketTrading, http.MethodGet, "/symbols/"+symbol, nil, &meta); err != nil {
		return types.SymbolMetadata{}, err
	}
	meta.Symbol = symbol
	b.cache.Put(meta)
	return meta, nil
}

func (b *HTTPBridge) InvalidateCache(symbol string) {
	b.cache.Invalidate(symbol)
}
