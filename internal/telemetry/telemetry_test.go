package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/failtrack/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestNew_EnabledProvidesTracerAndLogger(t *testing.T) {
	for _, proto := range []string{"http/protobuf", "grpc"} {
		t.Run(proto, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			cfg.Protocol = proto
			cfg.Endpoint = "localhost:1"

			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)
			degraded, reason := tel.Degraded()
			require.False(t, degraded, reason)
			assert.True(t, tel.IsEnabled())
			assert.NotNil(t, tel.LoggerProvider())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tel.Shutdown(ctx)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips validation", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local insecure", func(c *Config) { c.Enabled = true }, false},
		{"enabled remote insecure", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4318"
		}, true},
		{"enabled remote tls", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4318"
			c.Insecure = false
		}, false},
		{"bad protocol", func(c *Config) {
			c.Enabled = true
			c.Protocol = "udp"
		}, true},
		{"bad sample rate", func(c *Config) {
			c.Enabled = true
			c.SampleRate = 2
		}, true},
		{"ipv6 loopback", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "[::1]:4317"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "http://localhost:4317",
		Protocol:   "grpc",
		Insecure:   true,
		SampleRate: 0.5,
	}, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "failtrack", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.NoError(t, cfg.Validate())
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tel := NewTestTelemetry()
	_, span := tel.Tracer("test").Start(context.Background(), "op")
	span.End()

	require.Len(t, tel.Spans(), 1)
	assert.NotNil(t, tel.SpanByName("op"))
	assert.Nil(t, tel.SpanByName("missing"))
}
