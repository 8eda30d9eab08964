package violationsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tsgsafety/osha_tracker/config"
	"golang.org/x/time/rate"
)

const violationEndpoint = "/violation/json"

// Filter is the DOL filter_object query parameter.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ActivityNrFilter matches violations of any of the given inspections.
func ActivityNrFilter(activityNrs []string) Filter {
	return Filter{Field: "activity_nr", Operator: "in", Value: activityNrs}
}

// SinceFilter matches rows whose field is strictly after since. The API expects MM/DD/YYYY.
func SinceFilter(field string, since time.Time) Filter {
	return Filter{Field: field, Operator: "gt", Value: since.Format("01/02/2006")}
}

// PageFetcher performs one paginated GET against the violation dataset.
type PageFetcher interface {
	FetchPage(ctx context.Context, filter Filter, limit, offset int) ([]RawViolation, error)
}

type DOLClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewDOLClient builds the API client from settings. A non-positive
// DOLRateLimitPerMin disables client-side pacing.
func NewDOLClient(s config.SyncSettings) (*DOLClient, error) {
	if strings.TrimSpace(s.DOLAPIKey) == "" {
		return nil, errors.New("dol api key is empty")
	}
	timeout := s.DOLHTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.DOLRateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.DOLRateLimitPerMin)), 1)
	}

	return &DOLClient{
		baseURL: strings.TrimRight(s.DOLBaseURL, "/"),
		apiKey:  s.DOLAPIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

type dolListResponse struct {
	Data []RawViolation `json:"data"`
}

func (c *DOLClient) FetchPage(ctx context.Context, filter Filter, limit, offset int) ([]RawViolation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("filter_object", string(filterJSON))
	params.Set("X-API-KEY", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+violationEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: ErrRateLimited}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: errors.New(truncate(strings.TrimSpace(string(body)), 200))}
	}

	body = bytes.TrimSpace(body)
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	return decodeViolationPage(body)
}

// decodeViolationPage accepts {"data": [...]} as well as a bare array.
func decodeViolationPage(body []byte) ([]RawViolation, error) {
	if body[0] == '[' {
		var rows []RawViolation
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, &TransportError{StatusCode: http.StatusOK, Err: fmt.Errorf("decode page: %w", err)}
		}
		return rows, nil
	}
	var parsed dolListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &TransportError{StatusCode: http.StatusOK, Err: fmt.Errorf("decode page: %w", err)}
	}
	return parsed.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
