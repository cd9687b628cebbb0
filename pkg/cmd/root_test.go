package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiali/kiali-health/pkg/config"
	"github.com/kiali/kiali-health/pkg/health"
	"github.com/kiali/kiali-health/pkg/metrics"
)

func execute(t *testing.T, fs afero.Fs, stdin string, args ...string) (string, *MCPServerOptions, error) {
	t.Helper()
	out := &bytes.Buffer{}
	o := NewMCPServerOptions(fs, out, &bytes.Buffer{})
	rootCmd := newRootCmd(o)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), o, err
}

const customConfig = `
log_level = 2
kiali_server_url = "https://kiali.example.com"

[[health_config.rate]]
namespace = "bookinfo"
kind = "service"
name = "reviews"

  [[health_config.rate.tolerance]]
  code = "^4\\d\\d$"
  protocol = "http"
  direction = "inbound"
  degraded = 30
  failure = 40

[[health_config.rate]]

  [[health_config.rate.tolerance]]
  code = "^[4-5]\\d\\d$"
  degraded = 5
  failure = 10
`

const requestsDocument = `
inbound:
  http:
    200: 80
    404: 20
outbound: {}
`

type evaluation struct {
	ErrorRatio struct {
		Global struct {
			Value  float64 `json:"value"`
			Status string  `json:"status"`
		} `json:"global"`
		Inbound struct {
			Value  float64 `json:"value"`
			Status string  `json:"status"`
		} `json:"inbound"`
	} `json:"errorRatio"`
	Config []map[string]any `json:"config"`
}

func TestEvaluate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/kiali-health/config.toml", []byte(customConfig), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/requests.yaml", []byte(requestsDocument), 0o644))

	t.Run("default configuration", func(t *testing.T) {
		out, _, err := execute(t, fs, "", "evaluate", "--namespace", "bookinfo", "--name", "reviews", "--kind", "service", "--input", "/tmp/requests.yaml")
		require.NoError(t, err)
		var result evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "Failure", result.ErrorRatio.Global.Status)
		assert.Equal(t, 20.0, result.ErrorRatio.Global.Value)
		assert.Len(t, result.Config, 4)
	})

	t.Run("configuration file", func(t *testing.T) {
		out, o, err := execute(t, fs, "", "evaluate", "--config", "/etc/kiali-health/config.toml",
			"--namespace", "bookinfo", "--name", "reviews", "--kind", "service", "--input", "/tmp/requests.yaml")
		require.NoError(t, err)
		assert.Equal(t, 2, o.StaticConfig.LogLevel)
		var result evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "Healthy", result.ErrorRatio.Global.Status)
		require.Len(t, result.Config, 1)
		assert.Equal(t, "inbound", result.Config[0]["direction"])
	})

	t.Run("fallback entry of the configuration file", func(t *testing.T) {
		out, _, err := execute(t, fs, "", "evaluate", "--config", "/etc/kiali-health/config.toml",
			"--namespace", "bookinfo", "--name", "details", "--kind", "app", "--input", "/tmp/requests.yaml")
		require.NoError(t, err)
		var result evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "Failure", result.ErrorRatio.Global.Status)
		assert.Equal(t, 20.0, result.ErrorRatio.Global.Value)
	})

	t.Run("stdin with annotations", func(t *testing.T) {
		document := `{"inbound": {"http": {"200": 80, "404": 20}}, "healthAnnotations": {"health.kiali.io/rate": "4XX,50,60,http,.*"}}`
		out, _, err := execute(t, fs, document, "evaluate", "--namespace", "bookinfo", "--name", "reviews", "--input", "-")
		require.NoError(t, err)
		var result evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "Healthy", result.ErrorRatio.Global.Status)
		// backfilled with the plain 4xx/5xx percentage
		assert.Equal(t, 20.0, result.ErrorRatio.Inbound.Value)
	})

	t.Run("log level flag overrides the configuration file", func(t *testing.T) {
		_, o, err := execute(t, fs, "", "evaluate", "--config", "/etc/kiali-health/config.toml", "--log-level", "4",
			"--namespace", "bookinfo", "--name", "reviews", "--input", "/tmp/requests.yaml")
		require.NoError(t, err)
		assert.Equal(t, 4, o.StaticConfig.LogLevel)
		assert.Equal(t, "https://kiali.example.com", o.StaticConfig.KialiServerURL)
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, _, err := execute(t, fs, "", "evaluate", "--namespace", "bookinfo", "--name", "reviews", "--kind", "pod", "--input", "/tmp/requests.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid kind")
	})

	t.Run("missing input", func(t *testing.T) {
		_, _, err := execute(t, fs, "", "evaluate", "--namespace", "bookinfo", "--name", "reviews", "--input", "/tmp/missing.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read /tmp/missing.yaml")
	})

	t.Run("missing configuration file", func(t *testing.T) {
		_, _, err := execute(t, fs, "", "evaluate", "--config", "/etc/missing.toml", "--namespace", "bookinfo", "--name", "reviews", "--input", "/tmp/requests.yaml")
		require.Error(t, err)
	})
}

func TestAnnotation(t *testing.T) {
	fs := afero.NewMemMapFs()

	t.Run("valid", func(t *testing.T) {
		out, _, err := execute(t, fs, "", "annotation", "4XX,10,20,http,inbound;5XX,5,10,grpc|http,.*")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, `code=4\d\d protocol=http direction=inbound degraded=10% failure=20%`, lines[0])
		assert.Equal(t, `code=5\d\d protocol=grpc|http direction=.* degraded=5% failure=10%`, lines[1])
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := execute(t, fs, "", "annotation", "4XX,10,20,http,inbound;")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clause 2")
	})
}

func TestValidate(t *testing.T) {
	o := NewMCPServerOptions(afero.NewMemMapFs(), &bytes.Buffer{}, &bytes.Buffer{})
	assert.NoError(t, o.Validate())

	o.StaticConfig.LogLevel = 10
	assert.Error(t, o.Validate())

	o.StaticConfig.LogLevel = 0
	o.StaticConfig.UseServerHealthConfig = true
	assert.Error(t, o.Validate())
}

func TestReloadPolicy(t *testing.T) {
	o := NewMCPServerOptions(afero.NewMemMapFs(), &bytes.Buffer{}, &bytes.Buffer{})
	calculator, err := o.calculator()
	require.NoError(t, err)
	resolver := calculator.Resolver()
	reload := o.reloadPolicy(resolver, metrics.New())

	custom, err := config.ReadToml([]byte(customConfig))
	require.NoError(t, err)
	reload(custom)
	assert.Len(t, resolver.Policy(), 2)

	broken := config.Default()
	broken.HealthConfig.Rate[0].Tolerance[0].Code = "("
	reload(broken)
	assert.Len(t, resolver.Policy(), 2, "invalid configuration keeps the previous policy")

	o.StaticConfig.UseServerHealthConfig = true
	reload(&config.StaticConfig{HealthConfig: config.DefaultHealthConfig()})
	assert.Len(t, resolver.Policy(), 2, "server configuration wins over local changes")

	rules := resolver.Resolve("bookinfo", "reviews", health.KindService, nil)
	require.Len(t, rules, 1)
	assert.Equal(t, 30.0, rules[0].Degraded)
}
