package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sellout/internal/config"
)

// Client fetches month-end EUR reference rates from a frankfurter-style
// API. Rates are quoted as units of local currency per euro.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:    cfg.FXAPIBaseURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.FXTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.FXRateLimitRPS),
	}
}

// MonthRate asks for the rate on the last day of the given month. The API
// answers with the nearest preceding banking day.
func (c *Client) MonthRate(ctx context.Context, currency string, month, year int) (float64, error) {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	if lastDay.After(time.Now().UTC()) {
		lastDay = time.Now().UTC()
	}

	query := url.Values{}
	query.Set("base", "EUR")
	query.Set("symbols", currency)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, lastDay.Format("2006-01-02"), query.Encode())

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		c.limiter.WaitTurn()
		rate, retryable, err := c.fetchRate(ctx, endpoint, currency)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return 0, lastErr
}

func (c *Client) fetchRate(ctx context.Context, endpoint, currency string) (float64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, true, err
	}
	if resp.StatusCode >= 500 {
		return 0, true, fmt.Errorf("fx api status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("fx api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, false, err
	}
	rate, ok := parsed.Rates[currency]
	if !ok || rate == 0 {
		return 0, false, fmt.Errorf("no %s rate in response", currency)
	}
	return rate, false, nil
}
