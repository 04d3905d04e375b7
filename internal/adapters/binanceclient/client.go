package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	maxKlinesLimit = 1000
	tradesLimit    = 100
)

// lotSize is the LOT_SIZE filter of a symbol.
type lotSize struct {
	minQty   decimal.Decimal
	maxQty   decimal.Decimal
	stepSize decimal.Decimal
}

// Client implements the ports.ExchangeClient interface against the Binance spot API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	taxRate    float64

	mu       sync.Mutex
	lotSizes map[string]lotSize
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	TaxRate    float64 // Fraction of each fill's notional recorded as tax
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		taxRate:    cfg.TaxRate,
		lotSizes:   make(map[string]lotSize),
	}, nil
}

// mapAPICode classifies a Binance error code into the ports error taxonomy.
func mapAPICode(code int64) error {
	switch code {
	case -1000, -1001, -1006, -1016: // Unknown / disconnected / unexpected response / service shutting down
		return ports.ErrExchangeUnavailable
	case -1003, -1015: // Too many requests / too many orders
		return ports.ErrRateLimited
	case -1007, -1021: // Backend timeout / timestamp outside recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1013: // Filter failure (LOT_SIZE, MIN_NOTIONAL, ...)
		return ports.ErrBelowMinimum
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1114, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
		return ports.ErrInvalidRequest
	case -2010: // New order rejected (includes insufficient balance)
		return ports.ErrOrderPlacementFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	default:
		return ports.ErrUnknown
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		portsErr := &ports.APIError{Code: apiErr.Code, Message: apiErr.Message}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mapAPICode(apiErr.Code), portsErr)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"),
		strings.Contains(err.Error(), "i/o timeout"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// FetchCandles retrieves the most recent limit candles for the pair, oldest first.
func (c *Client) FetchCandles(ctx context.Context, pair domain.Pair, interval string, limit int) ([]*domain.Candle, error) {
	op := "FetchCandles"
	if limit <= 0 || limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}
	klines, err := c.spotClient.NewKlinesService().Symbol(pair.Symbol()).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k, pair.Symbol(), interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// FetchCandlesRange pages through all candles between start and end.
func (c *Client) FetchCandlesRange(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]*domain.Candle, error) {
	op := "FetchCandlesRange"
	var all []*domain.Candle
	from := start

	for {
		klines, err := c.spotClient.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			candle, err := translateKline(k, pair.Symbol(), interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline range: %w", err), op)
			}
			all = append(all, candle)
		}
		from = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesLimit {
			break
		}
	}
	return all, nil
}

// FetchBalance returns the free balance of every asset held.
func (c *Client) FetchBalance(ctx context.Context) (map[string]float64, error) {
	op := "FetchBalance"
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", b.Free, b.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		balances[b.Asset] = free
	}
	return balances, nil
}

// SubmitMarketOrder places a market order for amount units of the numerator.
// The amount is truncated to the symbol's LOT_SIZE step.
func (c *Client) SubmitMarketOrder(ctx context.Context, pair domain.Pair, side domain.OrderSide, amount float64, clientOrderID string) (string, error) {
	op := "SubmitMarketOrder"

	lot, err := c.lotSize(ctx, pair)
	if err != nil {
		return "", err
	}
	quantity, err := lot.normalize(amount)
	if err != nil {
		return "", fmt.Errorf("%s failed for %s: %w", op, pair, err)
	}

	c.logger.Debug(ctx, "Submitting market order", map[string]interface{}{
		"pair": pair.String(), "side": side, "quantity": quantity, "clientOrderID": clientOrderID,
	})
	res, err := c.spotClient.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(quantity).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	orderID := strconv.FormatInt(res.OrderID, 10)
	c.logger.Info(ctx, "Market order accepted", map[string]interface{}{
		"pair": pair.String(), "side": side, "orderID": orderID, "clientOrderID": clientOrderID,
	})
	return orderID, nil
}

// LookupOrder finds an order by the client order id it was submitted with.
func (c *Client) LookupOrder(ctx context.Context, pair domain.Pair, clientOrderID string) (string, error) {
	op := "LookupOrder"
	res, err := c.spotClient.NewGetOrderService().
		Symbol(pair.Symbol()).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	orderID := strconv.FormatInt(res.OrderID, 10)
	c.logger.Debug(ctx, "Order found by client order id", map[string]interface{}{
		"pair": pair.String(), "orderID": orderID, "clientOrderID": clientOrderID, "status": res.Status,
	})
	return orderID, nil
}

// FetchRecentTrades returns the account's latest trades for the pair with
// fees converted to the denominator and tax applied.
func (c *Client) FetchRecentTrades(ctx context.Context, pair domain.Pair) ([]*domain.Trade, error) {
	op := "FetchRecentTrades"
	raw, err := c.spotClient.NewListTradesService().Symbol(pair.Symbol()).Limit(tradesLimit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	trades := make([]*domain.Trade, 0, len(raw))
	for _, t := range raw {
		trade, err := c.translateTrade(t, pair)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate trade: %w", err), op)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// lotSize returns the cached LOT_SIZE filter for the pair, fetching it on first use.
func (c *Client) lotSize(ctx context.Context, pair domain.Pair) (lotSize, error) {
	op := "ExchangeInfo"
	symbol := pair.Symbol()

	c.mu.Lock()
	lot, ok := c.lotSizes[symbol]
	c.mu.Unlock()
	if ok {
		return lot, nil
	}

	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return lotSize{}, c.handleError(ctx, err, op)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f := s.LotSizeFilter()
		if f == nil {
			break
		}
		lot, err = parseLotSize(f.MinQuantity, f.MaxQuantity, f.StepSize)
		if err != nil {
			return lotSize{}, c.handleError(ctx, err, op)
		}
		c.mu.Lock()
		c.lotSizes[symbol] = lot
		c.mu.Unlock()
		return lot, nil
	}
	return lotSize{}, c.handleError(ctx, fmt.Errorf("no LOT_SIZE filter for %s: %w", symbol, ports.ErrInvalidRequest), op)
}

func parseLotSize(minQty, maxQty, step string) (lotSize, error) {
	var lot lotSize
	var err error
	if lot.minQty, err = decimal.NewFromString(minQty); err != nil {
		return lotSize{}, fmt.Errorf("parsing minQty '%s': %w", minQty, err)
	}
	if lot.maxQty, err = decimal.NewFromString(maxQty); err != nil {
		return lotSize{}, fmt.Errorf("parsing maxQty '%s': %w", maxQty, err)
	}
	if lot.stepSize, err = decimal.NewFromString(step); err != nil {
		return lotSize{}, fmt.Errorf("parsing stepSize '%s': %w", step, err)
	}
	return lot, nil
}

// normalize truncates amount down to the step size and checks the bounds.
func (l lotSize) normalize(amount float64) (string, error) {
	qty := decimal.NewFromFloat(amount)
	if l.stepSize.IsPositive() {
		qty = qty.Div(l.stepSize).Floor().Mul(l.stepSize)
	}
	if !qty.IsPositive() || qty.LessThan(l.minQty) {
		return "", fmt.Errorf("quantity %s below minimum %s: %w", qty.String(), l.minQty.String(), ports.ErrBelowMinimum)
	}
	if l.maxQty.IsPositive() && qty.GreaterThan(l.maxQty) {
		qty = l.maxQty
	}
	return qty.String(), nil
}

func translateKline(k *binance.Kline, symbol, interval string) (*domain.Candle, error) {
	if k == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

// translateTrade converts a spot trade. Commission paid in the numerator is
// valued at the trade price; commission in any third asset is not converted
// and is recorded as zero.
func (c *Client) translateTrade(t *binance.TradeV3, pair domain.Pair) (*domain.Trade, error) {
	if t == nil {
		return nil, errors.New("received nil trade")
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price '%s': %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quantity '%s': %w", t.Quantity, err)
	}
	commission, err := strconv.ParseFloat(t.Commission, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing commission '%s': %w", t.Commission, err)
	}

	var fee float64
	switch t.CommissionAsset {
	case pair.Denominator:
		fee = commission
	case pair.Numerator:
		fee = commission * price
	}

	return &domain.Trade{
		ExchangeOrderID: strconv.FormatInt(t.OrderID, 10),
		Price:           price,
		Amount:          qty,
		Fee:             fee,
		Tax:             c.taxRate * price * qty,
		Timestamp:       time.UnixMilli(t.Time).UTC(),
	}, nil
}
