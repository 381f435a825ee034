package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// API result codes shared by the trading endpoints.
const (
	codeOK                = 0
	codeInsufficientFunds = 1001
	codeInvalidOrder      = 1002
	codeRateLimited       = 1003
)

// Client is the REST connector. It implements Connector.
type Client struct {
	key, secret, base string
	rest              *resty.Client
}

func NewClient(key, secret, base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Client{key: key, secret: secret, base: base, rest: r}
}

type apiResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func sign(secret, ts, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) authHeaders(payload string) map[string]string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return map[string]string{
		"api-key":   c.key,
		"timestamp": ts,
		"sign":      sign(c.secret, ts, payload),
	}
}

// PlaceOrder submits an order and maps API failures onto the error
// taxonomy. Network errors come back as KindNetworkTimeout so callers can
// retry them with backoff.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var result struct {
		apiResp
		Data OrderResult `json:"data"`
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders(req.Symbol)).
		SetBody(req).
		SetResult(&result).
		Post(c.base + "/api/v1/trade/orders")
	if err != nil {
		return OrderResult{}, NewError(KindNetworkTimeout, "place order", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return OrderResult{}, NewError(KindRateLimited, "place order throttled", nil)
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderResult{}, NewError(KindUnknown,
			fmt.Sprintf("place order: status %d", resp.StatusCode()), nil)
	}

	switch result.Code {
	case codeOK:
		return result.Data, nil
	case codeInsufficientFunds:
		return OrderResult{}, NewError(KindInsufficientFunds, result.Msg, nil)
	case codeInvalidOrder:
		return OrderResult{}, NewError(KindInvalidOrder, result.Msg, nil)
	case codeRateLimited:
		return OrderResult{}, NewError(KindRateLimited, result.Msg, nil)
	default:
		return OrderResult{}, NewError(KindUnknown,
			fmt.Sprintf("place order: %d %s", result.Code, result.Msg), nil)
	}
}

// FetchSnapshot returns the exchange-reported balance and open positions.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	var result struct {
		apiResp
		Data Snapshot `json:"data"`
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders("")).
		SetResult(&result).
		Get(c.base + "/api/v1/account/snapshot")
	if err != nil {
		return Snapshot{}, NewError(KindNetworkTimeout, "fetch snapshot", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return Snapshot{}, NewError(KindRateLimited, "snapshot throttled", nil)
	}
	if resp.StatusCode() != http.StatusOK || result.Code != codeOK {
		return Snapshot{}, NewError(KindUnknown,
			fmt.Sprintf("fetch snapshot: status %d code %d %s", resp.StatusCode(), result.Code, result.Msg), nil)
	}

	snap := result.Data
	snap.Ts = time.Now()
	return snap, nil
}

// LastPrice fetches the latest traded price for a symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		apiResp
		Data struct {
			Price float64 `json:"price,string"`
		} `json:"data"`
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(c.base + "/api/v1/market/ticker")
	if err != nil {
		return 0, NewError(KindNetworkTimeout, "last price", err)
	}

	if resp.StatusCode() != http.StatusOK || result.Code != codeOK {
		return 0, NewError(KindUnknown,
			fmt.Sprintf("last price: status %d code %d", resp.StatusCode(), result.Code), nil)
	}
	return result.Data.Price, nil
}
