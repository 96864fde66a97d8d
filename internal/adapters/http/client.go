package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP Error %d: %s", e.StatusCode, e.Status)
}

type FetchOptions struct {
	Method            string
	Token             string
	Body              interface{}
	AdditionalHeaders map[string]string
}

type APIClient struct {
	Proxy      string
	UserAgent  string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewAPIClient(proxyURL string, timeout time.Duration, log *zap.Logger) (*APIClient, error) {
	transport, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &APIClient{
		Proxy:     proxyURL,
		UserAgent: defaultUserAgent,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		Log: log,
	}, nil
}

func newTransport(proxyURL string) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 2,
	}
	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to build socks5 dialer: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	return transport, nil
}

func (c *APIClient) generateHeaders(token string) map[string]string {
	headers := map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"Content-Type":    "application/json",
		"User-Agent":      c.UserAgent,
	}
	if token != "" {
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		headers["Authorization"] = token
	}
	return headers
}

// Fetch performs one request and decodes a 2xx JSON body into out when out
// is non-nil.
func (c *APIClient) Fetch(ctx context.Context, endpoint string, opts *FetchOptions, out interface{}) error {
	if opts == nil {
		opts = &FetchOptions{}
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	var reqBody io.Reader
	var bodyBytes []byte
	hasBody := opts.Method != http.MethodGet && opts.Body != nil
	if hasBody {
		var err error
		bodyBytes, err = json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.generateHeaders(opts.Token) {
		req.Header.Set(key, value)
	}
	for key, value := range opts.AdditionalHeaders {
		req.Header.Set(key, value)
	}
	if !hasBody {
		req.Header.Del("Content-Type")
	}

	if hasBody {
		c.Log.Debug("request", zap.String("method", opts.Method), zap.String("url", endpoint), zap.String("body", utils.BeautifyJSON(bodyBytes)))
	} else {
		c.Log.Debug("request", zap.String("method", opts.Method), zap.String("url", endpoint))
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer res.Body.Close()

	resBodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.Log.Debug("response", zap.Int("status", res.StatusCode), zap.String("body", utils.BeautifyJSON(resBodyBytes)))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       resBodyBytes,
		}
	}

	if out == nil || len(bytes.TrimSpace(resBodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
