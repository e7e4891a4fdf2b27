package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/metrics"
)

// YahooClient fetches daily adjusted closes from the Yahoo v8 chart API.
// Yahoo rate-limits aggressively, so requests rotate across query hosts
// with a short backoff ladder and fall back to the v7 spark endpoint when
// the chart endpoint keeps failing.
type YahooClient struct {
	baseURLs []string
	http     *http.Client
	backoffs []time.Duration
}

// NewYahooClient builds a client against the given base URLs
// (e.g. "https://query1.finance.yahoo.com"). Empty baseURLs selects the
// default host pair.
func NewYahooClient(baseURLs []string, timeout time.Duration) *YahooClient {
	if len(baseURLs) == 0 {
		baseURLs = []string{
			"https://query1.finance.yahoo.com",
			"https://query2.finance.yahoo.com",
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YahooClient{
		baseURLs: baseURLs,
		http:     &http.Client{Timeout: timeout},
		backoffs: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second},
	}
}

const yahooUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

// yahooChartResp mirrors the Yahoo v8 chart response, trimmed to the
// fields the engine needs.
type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooSparkResp mirrors the Yahoo v7 spark fallback, trimmed.
type yahooSparkResp struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Timestamp []int64   `json:"timestamp"`
				Close     []float64 `json:"close"`
			} `json:"response"`
		} `json:"result"`
	} `json:"spark"`
}

// Series implements Provider. The range is inclusive; Yahoo's period2 is
// exclusive, so the end is pushed one day forward on the wire.
func (c *YahooClient) Series(ctx context.Context, ticker string, start, end dates.Date) ([]Point, error) {
	if IsCash(ticker) {
		return nil, fmt.Errorf("prices: synthetic ticker %s must not reach the provider", ticker)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("prices: inverted range %s..%s", start, end)
	}

	started := time.Now()
	pts, err := c.fetchSeries(ctx, ticker, start, end)
	metrics.ProviderLatency.Observe(time.Since(started).Seconds())
	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNoData):
		metrics.ProviderRequests.WithLabelValues("no_data").Inc()
	default:
		metrics.ProviderRequests.WithLabelValues("error").Inc()
	}
	return pts, err
}

func (c *YahooClient) fetchSeries(ctx context.Context, ticker string, start, end dates.Date) ([]Point, error) {
	period1 := start.Time().Unix()
	period2 := end.AddDays(1).Time().Unix()

	var yc yahooChartResp
	lastErr := c.withRetries(ctx, func(base string) error {
		url := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=div%%2Csplits",
			base, ticker, period1, period2)
		body, err := c.get(ctx, url, ticker)
		if err != nil {
			return err
		}
		yc = yahooChartResp{}
		if err := json.Unmarshal(body, &yc); err != nil {
			return fmt.Errorf("parse yahoo json: %v; body: %s", err, preview(body))
		}
		return nil
	})

	if lastErr == nil {
		if e := yc.Chart.Error; e != nil {
			if e.Code == "Not Found" {
				return nil, NoDataFor(ticker)
			}
			return nil, fmt.Errorf("prices: yahoo error for %s: %s %s", ticker, e.Code, e.Description)
		}
		pts := chartPoints(yc, start, end)
		if len(pts) == 0 {
			return nil, NoDataFor(ticker)
		}
		return pts, nil
	}

	// Spark fallback: coarser payload, close only, but survives chart
	// endpoint outages.
	var sp yahooSparkResp
	sparkErr := c.withRetries(ctx, func(base string) error {
		url := fmt.Sprintf("%s/v7/finance/spark?symbols=%s&period1=%d&period2=%d&interval=1d",
			base, strings.ToUpper(ticker), period1, period2)
		body, err := c.get(ctx, url, ticker)
		if err != nil {
			return err
		}
		sp = yahooSparkResp{}
		return json.Unmarshal(body, &sp)
	})
	if sparkErr != nil {
		return nil, fmt.Errorf("prices: fetch %s: %w", ticker, lastErr)
	}
	if len(sp.Spark.Result) == 0 || len(sp.Spark.Result[0].Response) == 0 {
		return nil, NoDataFor(ticker)
	}
	r := sp.Spark.Result[0].Response[0]
	pts := pairPoints(r.Timestamp, r.Close, start, end)
	if len(pts) == 0 {
		return nil, NoDataFor(ticker)
	}
	return pts, nil
}

// withRetries runs fn against each base URL, sleeping through the backoff
// ladder between full passes. A nil return stops early.
func (c *YahooClient) withRetries(ctx context.Context, fn func(base string) error) error {
	var lastErr error
	for attempt := 0; attempt <= len(c.backoffs); attempt++ {
		for _, base := range c.baseURLs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if lastErr = fn(base); lastErr == nil {
				return nil
			}
		}
		if attempt < len(c.backoffs) {
			select {
			case <-time.After(c.backoffs[attempt]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// get performs one request and filters the Yahoo failure modes that must
// not be parsed as data: 429s, HTML error pages, "Edge:" text bodies.
func (c *YahooClient) get(ctx context.Context, url, ticker string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/chart", strings.ToUpper(ticker)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read yahoo response: %w", readErr)
	}
	if resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(string(body), "Edge: Too Many Requests") {
		return nil, fmt.Errorf("yahoo returned 429: Edge: Too Many Requests")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo returned %d: %s", resp.StatusCode, preview(body))
	}
	if strings.HasPrefix(string(body), "<") || strings.HasPrefix(string(body), "Edge:") {
		return nil, fmt.Errorf("yahoo returned non-json body: %s", preview(body))
	}
	return body, nil
}

// chartPoints extracts (date, adjusted close) pairs, preferring the
// adjclose indicator and falling back to the raw close.
func chartPoints(yc yahooChartResp, start, end dates.Date) []Point {
	if len(yc.Chart.Result) == 0 {
		return nil
	}
	r := yc.Chart.Result[0]
	closes := []float64(nil)
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	return pairPoints(r.Timestamp, closes, start, end)
}

// pairPoints zips timestamps with closes, dropping empty observations and
// collapsing intraday timestamps onto calendar days within [start, end].
func pairPoints(ts []int64, closes []float64, start, end dates.Date) []Point {
	n := len(ts)
	if len(closes) < n {
		n = len(closes)
	}
	var pts []Point
	for i := 0; i < n; i++ {
		if closes[i] <= 0 {
			continue
		}
		d := dates.FromTime(time.Unix(ts[i], 0).UTC())
		if d.Before(start) || d.After(end) {
			continue
		}
		if len(pts) > 0 && pts[len(pts)-1].Date.Equal(d) {
			pts[len(pts)-1].Close = closes[i]
			continue
		}
		pts = append(pts, Point{Date: d, Close: closes[i]})
	}
	return pts
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
