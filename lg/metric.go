package lg

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	sdk "go.opentelemetry.io/otel/sdk/metric"
)

var meterKey = contextKey{"meter"}
var promHTTPKey = contextKey{"promHTTP"}

func Meter(ctx context.Context) api.Meter {
	if m := fromContext[contextKey, api.Meter](ctx, meterKey); m != nil {
		return m
	}

	return otel.Meter("go.sour.is/gqlrelay")
}

// Count adds n to the named counter. Instrument errors are dropped.
func Count(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	c, err := Meter(ctx).Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, n, api.WithAttributes(attrs...))
}

func NewHTTP(ctx context.Context) *httpHandle {
	t := fromContext[contextKey, *prometheus.Exporter](ctx, promHTTPKey)
	return &httpHandle{t}
}

func initMetrics(ctx context.Context, name string) (context.Context, func() error) {
	ex, err := prometheus.New()
	if err != nil {
		log.Println(wrap(err, "failed to create metric exporter"))
		return ctx, nil
	}
	provider := sdk.NewMeterProvider(sdk.WithReader(ex))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(name)

	ctx = toContext(ctx, promHTTPKey, ex)
	ctx = toContext(ctx, meterKey, meter)
	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		log.Println(wrap(err, "failed to start runtime metrics"))
	}

	return ctx, func() error {
		defer log.Println("metrics stopped")
		return wrap(provider.Shutdown(context.Background()), "failed to shutdown MeterProvider")
	}
}

type httpHandle struct {
	exp *prometheus.Exporter
}

// RegisterHTTP exposes /metrics when metrics were initialized.
func (h *httpHandle) RegisterHTTP(mux *http.ServeMux) {
	if h.exp == nil {
		return
	}
	mux.Handle("/metrics", promhttp.Handler())
}
