// Package tracing настраивает OpenTelemetry TracerProvider процесса.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vladislavdragonenkov/creditmarket/internal/version"
)

// ShutdownFunc сбрасывает накопленные спаны и останавливает экспортёр.
type ShutdownFunc func(context.Context) error

// Options — параметры провайдера.
type Options struct {
	ServiceName string
	// Writer — куда stdout-экспортёр пишет спаны; по умолчанию os.Stdout.
	Writer io.Writer
}

// Setup регистрирует глобальный TracerProvider со stdout-экспортёром
// и W3C trace-context пропагатором.
func Setup(opts Options) (ShutdownFunc, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "creditmarket"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", version.GetVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Noop используется, когда трассировка выключена.
func Noop(context.Context) error { return nil }
