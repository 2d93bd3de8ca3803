package trace

import (
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/reporter"
)

// Tracer returns a zipkin tracer that samples every span. Spans go to rep,
// or nowhere when rep is nil.
func Tracer(serviceName string, rep reporter.Reporter) (*zipkin.Tracer, error) {
	if rep == nil {
		rep = reporter.NewNoopReporter()
	}
	endpoint, err := zipkin.NewEndpoint(serviceName, "")
	if err != nil {
		return nil, err
	}
	return zipkin.NewTracer(rep,
		zipkin.WithLocalEndpoint(endpoint),
		zipkin.WithSampler(zipkin.AlwaysSample),
	)
}
