package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// BybitConfig holds the configuration for the Bybit-backed metrics source.
type BybitConfig struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	Demo       bool // demo trading environment
	SettleCoin string
}

// BybitSource builds portfolio snapshots from the Bybit unified account:
// total equity and per-coin shares from the wallet endpoint, net exposure
// from the open linear positions. Daily loss is measured against the first
// equity reading of the current UTC day.
type BybitSource struct {
	httpClient *bybit_api.Client
	settleCoin string

	mu            sync.Mutex
	dayOpenEquity float64
	dayOpenDate   string
}

// NewBybitSource creates a metrics source backed by the Bybit v5 API.
func NewBybitSource(config BybitConfig) *BybitSource {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	settleCoin := config.SettleCoin
	if settleCoin == "" {
		settleCoin = "USDT"
	}

	return &BybitSource{
		httpClient: bybit_api.NewBybitHttpClient(
			config.APIKey,
			config.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		settleCoin: settleCoin,
	}
}

// Fetch implements Source
func (b *BybitSource) Fetch(ctx context.Context) (*Snapshot, error) {
	equity, maxShare, err := b.fetchWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}

	netExposure, err := b.fetchNetExposure(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	return &Snapshot{
		Timestamp:             time.Now().UTC(),
		PortfolioDailyLossPct: b.dailyChangePct(equity),
		AbsNetExposureQuote:   math.Abs(netExposure),
		MaxEquitySharePct:     maxShare,
		TotalEquityQuote:      equity,
	}, nil
}

// fetchWallet returns total account equity and the largest single-coin
// equity share in percent.
func (b *BybitSource) fetchWallet(ctx context.Context) (float64, float64, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	serverResp, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return 0, 0, err
	}
	if serverResp.RetCode != 0 {
		return 0, 0, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal result: %w", err)
	}

	var walletResult struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
			Coin        []struct {
				Coin     string `json:"coin"`
				UsdValue string `json:"usdValue"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return 0, 0, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}
	if len(walletResult.List) == 0 {
		return 0, 0, fmt.Errorf("no account data found")
	}

	account := walletResult.List[0]
	equity := parseFloat64(account.TotalEquity)

	maxShare := 0.0
	if equity > 0 {
		for _, coin := range account.Coin {
			share := math.Abs(parseFloat64(coin.UsdValue)) / equity * 100
			if share > maxShare {
				maxShare = share
			}
		}
	}

	return equity, maxShare, nil
}

// fetchNetExposure returns the signed sum of open linear position values.
func (b *BybitSource) fetchNetExposure(ctx context.Context) (float64, error) {
	params := map[string]interface{}{
		"category":   "linear",
		"settleCoin": b.settleCoin,
	}

	serverResp, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return 0, err
	}
	if serverResp.RetCode != 0 {
		return 0, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal result: %w", err)
	}

	var positionResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			PositionValue string `json:"positionValue"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &positionResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal position result: %w", err)
	}

	net := 0.0
	for _, pos := range positionResult.List {
		value := parseFloat64(pos.PositionValue)
		if pos.Side == "Sell" {
			value = -value
		}
		net += value
	}

	return net, nil
}

// dailyChangePct tracks the first equity reading of each UTC day and returns
// the signed percentage change against it.
func (b *BybitSource) dailyChangePct(equity float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if b.dayOpenDate != today || b.dayOpenEquity == 0 {
		b.dayOpenDate = today
		b.dayOpenEquity = equity
		return 0
	}

	return (equity - b.dayOpenEquity) / b.dayOpenEquity * 100
}

func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
