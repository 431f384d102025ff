// Package pyth talks to the Hermes price service and turns its update
// payloads into on-ledger price-feed update calls.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var _ domain.PriceService = (*HermesClient)(nil)

// Default Hermes endpoints per network.
const (
	MainnetHermesURL = "https://hermes.pyth.network"
	TestnetHermesURL = "https://hermes-beta.pyth.network"
)

// HermesURL returns the default endpoint for a network. Unknown networks use
// the beta endpoint.
func HermesURL(network string) string {
	if network == "mainnet" {
		return MainnetHermesURL
	}
	return TestnetHermesURL
}

// HermesClient is the REST client for Hermes.
type HermesClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHermesClient creates a client rooted at baseURL,
// e.g. "https://hermes.pyth.network".
func NewHermesClient(baseURL string, timeout time.Duration) *HermesClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HermesClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type apiParsedFeed struct {
	ID       string   `json:"id"`
	Price    apiPrice `json:"price"`
	EMAPrice apiPrice `json:"ema_price"`
}

type apiUpdate struct {
	Binary struct {
		Encoding string   `json:"encoding"`
		Data     []string `json:"data"`
	} `json:"binary"`
	Parsed []apiParsedFeed `json:"parsed"`
}

func (f apiParsedFeed) toDomain() (domain.PriceFeed, error) {
	price, err := strconv.ParseInt(f.Price.Price, 10, 64)
	if err != nil {
		return domain.PriceFeed{}, &domain.ParseError{Path: "parsed.price.price", Reason: err.Error()}
	}
	conf, err := strconv.ParseUint(f.Price.Conf, 10, 64)
	if err != nil {
		return domain.PriceFeed{}, &domain.ParseError{Path: "parsed.price.conf", Reason: err.Error()}
	}
	feed := domain.PriceFeed{
		PriceID:     strings.TrimPrefix(strings.ToLower(f.ID), "0x"),
		Price:       price,
		Conf:        conf,
		Expo:        f.Price.Expo,
		PublishTime: time.Unix(f.Price.PublishTime, 0).UTC(),
	}
	if f.EMAPrice.Price != "" {
		if ema, err := strconv.ParseInt(f.EMAPrice.Price, 10, 64); err == nil {
			feed.EMAPrice = ema
		}
	}
	return feed, nil
}

// LatestPrices returns the parsed latest price of each id.
func (c *HermesClient) LatestPrices(ctx context.Context, priceIDs []string) ([]domain.PriceFeed, error) {
	if len(priceIDs) == 0 {
		return nil, nil
	}
	upd, err := c.latest(ctx, priceIDs, true)
	if err != nil {
		return nil, fmt.Errorf("pyth/hermes: latest prices: %w", err)
	}
	feeds := make([]domain.PriceFeed, 0, len(upd.Parsed))
	for _, p := range upd.Parsed {
		f, err := p.toDomain()
		if err != nil {
			return nil, fmt.Errorf("pyth/hermes: latest prices: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// LatestUpdates returns the binary accumulator updates covering every id.
func (c *HermesClient) LatestUpdates(ctx context.Context, priceIDs []string) ([][]byte, error) {
	if len(priceIDs) == 0 {
		return nil, nil
	}
	upd, err := c.latest(ctx, priceIDs, false)
	if err != nil {
		return nil, fmt.Errorf("pyth/hermes: latest updates: %w", err)
	}
	if upd.Binary.Encoding != "" && upd.Binary.Encoding != "hex" {
		return nil, fmt.Errorf("pyth/hermes: latest updates: %w", &domain.ParseError{Path: "binary.encoding", Reason: "unexpected " + upd.Binary.Encoding})
	}
	out := make([][]byte, 0, len(upd.Binary.Data))
	for i, h := range upd.Binary.Data {
		b, err := hexutil.Decode("0x" + strings.TrimPrefix(h, "0x"))
		if err != nil {
			return nil, fmt.Errorf("pyth/hermes: latest updates: %w", &domain.ParseError{Path: fmt.Sprintf("binary.data[%d]", i), Reason: err.Error()})
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pyth/hermes: latest updates: %w", &domain.ParseError{Path: "binary.data", Reason: "empty"})
	}
	return out, nil
}

func (c *HermesClient) latest(ctx context.Context, priceIDs []string, parsed bool) (apiUpdate, error) {
	params := url.Values{}
	for _, id := range priceIDs {
		params.Add("ids[]", id)
	}
	params.Set("encoding", "hex")
	params.Set("parsed", strconv.FormatBool(parsed))

	body, err := c.doGet(ctx, "/v2/updates/price/latest?"+params.Encode())
	if err != nil {
		return apiUpdate{}, err
	}
	var upd apiUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return apiUpdate{}, &domain.ParseError{Path: "response", Reason: err.Error()}
	}
	return upd, nil
}

func (c *HermesClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrRemoteUnavailable, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	}
	return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRemoteUnavailable, statusCode, body)
}
