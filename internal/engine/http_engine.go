package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"raito/internal/model"
)

// HTTPEngine is the plain net/http fetcher, adapted from the teacher's
// HTTPScraper: no JS execution, no actions, no screenshots. It is the
// baseline engine every scrape request can fall back to.
type HTTPEngine struct {
	client *http.Client
}

func NewHTTPEngine() *HTTPEngine {
	return &HTTPEngine{client: &http.Client{}}
}

// Descriptor describes what HTTPEngine can and cannot do.
func (e *HTTPEngine) Descriptor() model.EngineDescriptor {
	return model.EngineDescriptor{
		Name:         "http",
		Capabilities: model.FeatureBlockAds | model.FeatureSkipTLSVerify,
		Quality:      5,
	}
}

func (e *HTTPEngine) Handle(ctx context.Context, job model.ScrapeJob, timeToRun int64) (Result, error) {
	u, err := url.Parse(job.URL)
	if err != nil {
		return Result{}, &model.EngineError{Engine: "http", Err: err}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	client := e.client
	if job.ScrapeOptions.SkipTLSVerify {
		client = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeToRun)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, &model.EngineError{Engine: "http", Err: err}
	}
	for k, v := range job.ScrapeOptions.Headers {
		req.Header.Set(k, v)
	}
	if job.ScrapeOptions.Location != nil && len(job.ScrapeOptions.Location.Languages) > 0 {
		req.Header.Set("Accept-Language", job.ScrapeOptions.Location.Languages[0])
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, classifyHTTPError("http", u.Hostname(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &model.EngineError{Engine: "http", Err: err}
	}

	return Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		HTML:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// classifyHTTPError maps net/http transport errors onto the pipeline's
// typed error taxonomy (spec §4.G step 3d) so the fallback loop can
// branch on error kind via errors.As instead of string matching.
func classifyHTTPError(engineName, host string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &model.DNSResolutionError{Engine: engineName, Host: host}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &model.TimeoutError{Engine: engineName}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &model.SSLError{Engine: engineName, Err: err}
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return &model.SSLError{Engine: engineName, Err: err}
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return &model.SSLError{Engine: engineName, Err: err}
	}

	return &model.EngineError{Engine: engineName, Err: err}
}
