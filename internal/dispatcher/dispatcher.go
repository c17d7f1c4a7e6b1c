package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/notify-worker/internal/notify"
)

// Provider is one channel adapter. Adapters own their retry envelope; the
// dispatcher routes and propagates their errors unchanged so callers keep the
// retryable classification.
type Provider interface {
	Name() string
	Send(ctx context.Context, req *notify.Request) error
}

// Renderer resolves a named template against a data context.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

var dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_dispatched_total",
	Help: "Dispatch outcomes by channel",
}, []string{"channel", "status"})

type Dispatcher struct {
	Providers map[notify.Channel]Provider
	Renderer  Renderer
	Logger    zerolog.Logger
}

// Dispatch validates the request, renders the email template if one is named,
// and delegates to exactly one provider.
func (d *Dispatcher) Dispatch(ctx context.Context, req *notify.Request) error {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("notification.channel", string(req.Channel)))

	err := d.dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		dispatchCounter.WithLabelValues(string(req.Channel), "error").Inc()
		return err
	}
	dispatchCounter.WithLabelValues(string(req.Channel), "ok").Inc()
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req *notify.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	p, ok := d.Providers[req.Channel]
	if !ok {
		return fmt.Errorf("%w: no provider registered for channel %q", notify.ErrInvalidRequest, req.Channel)
	}

	if req.Channel == notify.ChannelEmail && req.Template != "" {
		body, err := d.Renderer.Render(req.Template, req.TemplateData)
		if err != nil {
			return err
		}
		// Rendered body overrides any raw body; copy so the caller's request
		// is left untouched.
		opts := *req.Email
		opts.Body = body
		clone := *req
		clone.Email = &opts
		req = &clone
	}

	return p.Send(ctx, req)
}

// DispatchBatch fires all requests concurrently and waits for every one to
// settle. Failures do not undo or retry the successes; a BatchError reports
// the aggregate counts.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []*notify.Request) error {
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *notify.Request) {
			defer wg.Done()
			errs[i] = d.Dispatch(ctx, req)
		}(i, req)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	d.Logger.Error().Int("failed", len(failed)).Int("total", len(reqs)).Msg("batch dispatch partially failed")
	return &notify.BatchError{
		Succeeded: len(reqs) - len(failed),
		Failed:    len(failed),
		Total:     len(reqs),
		Errs:      failed,
	}
}
