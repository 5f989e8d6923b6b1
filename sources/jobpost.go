package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"
)

// ReadJobPost loads a job posting from an http(s) URL or a local file.
func ReadJobPost(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return FetchJobPost(ctx, ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ErrBlockedAddress is returned when PublicAddressesOnly refuses a connection.
var ErrBlockedAddress = errors.New("address is not public")

// FetchOption adjusts how FetchJobPost reaches the network.
type FetchOption func(*fetchSettings)

type fetchSettings struct {
	publicOnly bool
}

// PublicAddressesOnly refuses to connect to loopback, private or link-local
// addresses. The check runs on the resolved address of every connection, so
// it also covers redirects. Proxies from the environment are not used.
func PublicAddressesOnly() FetchOption {
	return func(s *fetchSettings) {
		s.publicOnly = true
	}
}

// FetchJobPost downloads a job posting page and returns the visible text of
// its body. Cancelling ctx aborts the download.
func FetchJobPost(ctx context.Context, url string, opts ...FetchOption) (string, error) {
	var settings fetchSettings
	for _, o := range opts {
		o(&settings)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	c := colly.NewCollector(colly.UserAgent("resumestudio/1.0"))
	c.WithTransport(newFetchTransport(ctx, settings))
	c.SetRequestTimeout(30 * time.Second)

	var text string
	var reqErr error

	c.OnHTML("body", func(e *colly.HTMLElement) {
		e.DOM.Find("script,style,noscript,svg").Remove()
		text = collapseLines(e.DOM.Text())
	})

	c.OnError(func(r *colly.Response, err error) {
		reqErr = fmt.Errorf("fetch %s: status %d: %w", url, r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && reqErr == nil {
		return "", err
	}
	c.Wait()
	if reqErr != nil {
		return "", reqErr
	}
	if text == "" {
		return "", errors.New("no text found at " + url)
	}
	return text, nil
}

// contextTransport binds every request colly makes to ctx.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

func newFetchTransport(ctx context.Context, settings fetchSettings) http.RoundTripper {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}
	if settings.publicOnly {
		dialer.Control = rejectNonPublic
		transport.Proxy = nil
	}
	return contextTransport{ctx: ctx, next: transport}
}

func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}
