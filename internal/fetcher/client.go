package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout           = 15 * time.Second
	defaultRequestsPerSecond = 5
	maxResponseBytes         = 32 << 20
	contentPathTemplate      = "/api/v1/group/%s/content"
)

var (
	// ErrMissingBaseURL indicates the client was built without a node address.
	ErrMissingBaseURL = errors.New("fetcher: node base url is required")
	// ErrUnexpectedStatus indicates the node answered with a non-success status.
	ErrUnexpectedStatus = errors.New("fetcher: unexpected status")
)

// Options selects a page of the group content log.
type Options struct {
	Num             int
	StartTrx        string
	Nonce           int64
	Reverse         bool
	IncludeStartTrx bool
}

// Config describes a node content client.
type Config struct {
	BaseURL           string
	Token             string
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client fetches transactions from a node content API.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient constructs a rate-limited content client.
func NewClient(cfg Config) (*Client, error) {
	rawBaseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	baseURL, err := url.Parse(rawBaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	requestsPerSecond := cfg.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:     logger,
	}, nil
}

// Fetch returns up to options.Num transactions after options.StartTrx. The
// node does not guarantee timestamp order.
func (c *Client) Fetch(ctx context.Context, groupID string, options Options) ([]activity.Transaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentURL(groupID, options), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	items, err := activity.DecodeTransactions(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("content fetched",
		zap.String("group_id", groupID),
		zap.String("start_trx", options.StartTrx),
		zap.Int("count", len(items)))
	return items, nil
}

func (c *Client) contentURL(groupID string, options Options) string {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + fmt.Sprintf(contentPathTemplate, url.PathEscape(groupID))

	query := url.Values{}
	if options.Num > 0 {
		query.Set("num", strconv.Itoa(options.Num))
	}
	if options.StartTrx != "" {
		query.Set("start_trx", options.StartTrx)
	}
	if options.Nonce > 0 {
		query.Set("nonce", strconv.FormatInt(options.Nonce, 10))
	}
	query.Set("reverse", strconv.FormatBool(options.Reverse))
	query.Set("include_start_trx", strconv.FormatBool(options.IncludeStartTrx))
	endpoint.RawQuery = query.Encode()
	return endpoint.String()
}
