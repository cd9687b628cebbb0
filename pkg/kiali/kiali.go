package kiali

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/kiali/kiali-health/pkg/config"
	internalk8s "github.com/kiali/kiali-health/pkg/kubernetes"
)

// Kiali is a client of the Kiali server API.
type Kiali struct {
	staticConfig *config.StaticConfig
	// authorization is the Authorization header value sent with every request, if any.
	authorization string
}

// NewFromConfig creates a new Kiali client backed by the given static configuration.
func NewFromConfig(cfg *config.StaticConfig) *Kiali {
	return &Kiali{staticConfig: cfg}
}

// Derived returns a client that authenticates with the bearer token found in ctx.
// Without a bearer token the client itself is returned, unless OAuth is required.
func (k *Kiali) Derived(ctx context.Context) (*Kiali, error) {
	authorization, ok := ctx.Value(internalk8s.OAuthAuthorizationHeader).(string)
	if !ok || !strings.HasPrefix(authorization, "Bearer ") {
		if k.staticConfig != nil && k.staticConfig.RequireOAuth {
			return nil, fmt.Errorf("oauth token required")
		}
		return k, nil
	}
	klog.V(5).Infof("%s header found (Bearer), using provided bearer token", internalk8s.OAuthAuthorizationHeader)
	return &Kiali{staticConfig: k.staticConfig, authorization: authorization}, nil
}

// validateAndGetBaseURL validates the Kiali client configuration and returns the base URL.
func (k *Kiali) validateAndGetBaseURL() (string, error) {
	if k == nil || k.staticConfig == nil {
		return "", fmt.Errorf("kiali client not initialized")
	}
	baseURL := strings.TrimSpace(k.staticConfig.KialiServerURL)
	if baseURL == "" {
		return "", fmt.Errorf("kiali server URL not configured")
	}
	return strings.TrimRight(baseURL, "/"), nil
}

// createHTTPClient creates an HTTP client with appropriate TLS configuration.
func (k *Kiali) createHTTPClient() *http.Client {
	transport := &http.Transport{}
	if k.staticConfig.KialiInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // allowed via configuration
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// executeRequest executes a GET request and handles common error scenarios.
func (k *Kiali) executeRequest(ctx context.Context, endpoint string) (string, error) {
	klog.V(0).Infof("kiali API call: %s", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if k.authorization != "" {
		req.Header.Set("Authorization", k.authorization)
	} else if k.staticConfig.RequireOAuth {
		return "", fmt.Errorf("authorization token required for Kiali call")
	}
	req.Header.Set("User-Agent", internalk8s.CustomUserAgent)

	client := k.createHTTPClient()
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 0 {
			return "", fmt.Errorf("kiali API error: %s", strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("kiali API error: status %d", resp.StatusCode)
	}
	return string(body), nil
}

// serverConfig is the subset of the Kiali /api/config response used here.
type serverConfig struct {
	HealthConfig config.HealthConfig `json:"healthConfig"`
}

// HealthConfig returns the health configuration the Kiali server is running with.
func (k *Kiali) HealthConfig(ctx context.Context) (config.HealthConfig, error) {
	baseURL, err := k.validateAndGetBaseURL()
	if err != nil {
		return config.HealthConfig{}, err
	}
	content, err := k.executeRequest(ctx, baseURL+"/api/config")
	if err != nil {
		return config.HealthConfig{}, err
	}
	var cfg serverConfig
	if err := json.Unmarshal([]byte(content), &cfg); err != nil {
		return config.HealthConfig{}, fmt.Errorf("failed to parse server config: %v", err)
	}
	if len(cfg.HealthConfig.Rate) == 0 {
		return config.HealthConfig{}, fmt.Errorf("kiali server reported no health rate configuration")
	}
	return cfg.HealthConfig, nil
}
