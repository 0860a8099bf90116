package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// ErrorKind classifies transport failures
type ErrorKind int

const (
	// ErrOther covers malformed responses, body read failures and cancellation
	ErrOther ErrorKind = iota
	// ErrConnection covers DNS failures, refused and reset connections
	ErrConnection
	// ErrTimeout covers request deadlines
	ErrTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConnection:
		return "connection"
	case ErrTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// TransportError is returned by HTTPClient.Fetch for any failure that
// prevented a complete HTTP response from being read
type TransportError struct {
	URL  string
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a connection-level transport failure
func IsConnectionError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == ErrConnection
}

// IsTimeoutError reports whether err is a transport timeout
func IsTimeoutError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == ErrTimeout
}

// classifyError maps a net/http client error to an ErrorKind
func classifyError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return ErrConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnection
	}

	return ErrOther
}

// HTTPClient handles HTTP requests with performance metrics
type HTTPClient struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// HTTPMetrics contains performance metrics for an HTTP request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
	DNSLookup    time.Duration // DNS lookup time
	TCPConnect   time.Duration // TCP connection time
	TLSHandshake time.Duration // TLS handshake time
}

// HTTPResponse contains the response and metrics
type HTTPResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte // UTF-8 for HTML responses
	Metrics     HTTPMetrics
	FinalURL    string // After following same-host redirects
	Location    string // Absolute redirect target when a cross-host redirect was not followed
}

// IsRedirect reports whether the response is an unfollowed redirect
func (r *HTTPResponse) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsHTML reports whether the response declares an HTML content type
func (r *HTTPResponse) IsHTML() bool {
	ct := strings.ToLower(strings.TrimSpace(r.ContentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// NewHTTPClient creates a new HTTP client. maxBodyBytes <= 0 means no limit.
func NewHTTPClient(userAgent string, timeout time.Duration, maxBodyBytes int64) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			// Another host is only reached through the frontier
			if !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPClient{
		client:       client,
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
	}
}

// Fetch performs an HTTP GET request. HTTP error statuses are returned as
// ordinary responses; only failures to obtain a response produce an error,
// always a *TransportError. Redirects are followed within the requested
// host only; a redirect to another host is returned with Location set.
func (h *HTTPClient) Fetch(ctx context.Context, url string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Kind: ErrOther, Err: err}
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	var metrics HTTPMetrics
	var dnsStart, connectStart, tlsStart, firstByteTime time.Time

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			metrics.DNSLookup = time.Since(dnsStart)
		},
		ConnectStart: func(network, addr string) {
			connectStart = time.Now()
		},
		ConnectDone: func(network, addr string, err error) {
			metrics.TCPConnect = time.Since(connectStart)
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			metrics.TLSHandshake = time.Since(tlsStart)
		},
		GotFirstResponseByte: func() {
			firstByteTime = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	startTime := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Kind: classifyError(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if !firstByteTime.IsZero() {
		metrics.TTFB = firstByteTime.Sub(startTime)
	}

	result := &HTTPResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}
	if result.IsRedirect() {
		if loc, err := resp.Location(); err == nil {
			result.Location = loc.String()
		}
	}

	body, closeDecoder, err := decodeContentEncoding(resp)
	if err != nil {
		return nil, &TransportError{URL: url, Kind: ErrOther, Err: err}
	}
	defer closeDecoder()

	if h.maxBodyBytes > 0 {
		body = io.LimitReader(body, h.maxBodyBytes)
	}
	if result.IsHTML() {
		decoded, err := charset.NewReader(body, result.ContentType)
		if err != nil {
			return nil, &TransportError{URL: url, Kind: ErrOther, Err: fmt.Errorf("failed to decode body: %w", err)}
		}
		body = decoded
	}

	result.Body, err = io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{URL: url, Kind: classifyError(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	metrics.DownloadTime = time.Since(startTime)
	result.Metrics = metrics

	return result, nil
}

// decodeContentEncoding wraps the response body in a decompressor matching
// its Content-Encoding. The returned func releases the decompressor.
func decodeContentEncoding(resp *http.Response) (io.Reader, func(), error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, func() { _ = gz.Close() }, nil
	case "deflate":
		fl := flate.NewReader(resp.Body)
		return fl, func() { _ = fl.Close() }, nil
	case "br":
		return brotli.NewReader(resp.Body), func() {}, nil
	default:
		return resp.Body, func() {}, nil
	}
}

// Close closes the HTTP client
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
