package hooks

import (
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/failtrack/internal/config"
	"github.com/fyrsmithlabs/failtrack/internal/delivery"
	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/logging"
	"github.com/fyrsmithlabs/failtrack/internal/secrets"
)

// Deps are the optional collaborators of a Hook built from configuration.
type Deps struct {
	Out        io.Writer
	Logger     *logging.Logger
	Tracer     trace.Tracer
	Metrics    *delivery.Metrics
	HTTPClient *http.Client
	Manager    *HookManager
}

// FromConfig wires extractor, scrubber and delivery client from cfg.
func FromConfig(cfg *config.Config, deps Deps) (*Hook, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var scrubber *secrets.Scrubber
	if cfg.Capture.ScrubSecrets {
		scfg := secrets.DefaultConfig()
		scfg.Gitleaks = cfg.Capture.GitleaksRules
		s, err := secrets.New(scfg)
		if err != nil {
			return nil, fmt.Errorf("creating scrubber: %w", err)
		}
		scrubber = s
	}

	ext := extract.New(extract.WithScrubber(scrubber), extract.WithLogger(logger))

	dopts := []delivery.Option{
		delivery.WithTimeout(cfg.Capture.Timeout.Duration()),
		delivery.WithOutput(deps.Out),
		delivery.WithLogger(logger.Named("delivery")),
	}
	if deps.Tracer != nil {
		dopts = append(dopts, delivery.WithTracer(deps.Tracer))
	}
	if deps.Metrics != nil {
		dopts = append(dopts, delivery.WithMetrics(deps.Metrics))
	}
	if deps.HTTPClient != nil {
		dopts = append(dopts, delivery.WithHTTPClient(deps.HTTPClient))
	}

	opts := []Option{WithOutput(deps.Out), WithLogger(logger)}
	if deps.Manager != nil {
		opts = append(opts, WithManager(deps.Manager))
	}
	return New(ext, delivery.New(cfg.CaptureEndpoints(), dopts...), opts...), nil
}
