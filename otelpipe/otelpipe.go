/*
   Copyright The SimplePipe Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package otelpipe provides OpenTelemetry instrumentation for simplepipe
// endpoints.
package otelpipe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abtcomm/simplepipe"
)

// instrumentationName is the name of this instrumentation package.
const instrumentationName = "github.com/abtcomm/simplepipe/otelpipe"

// Semantic conventions for pipe event attributes.
var (
	// PipeEventKey records which endpoint event a span describes.
	PipeEventKey = attribute.Key("pipe.event")

	// PipePayloadSizeKey records the received payload size in bytes.
	PipePayloadSizeKey = attribute.Key("pipe.payload_size")
)

type config struct {
	tracerProvider trace.TracerProvider
}

// Option applies an instrumentation option value.
type Option func(*config)

// WithTracerProvider sets the tracer provider to use; the global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

func newConfig(opts []Option) *config {
	c := &config{tracerProvider: otel.GetTracerProvider()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EventHandler wraps next so that every endpoint event is recorded as a
// span before it reaches the user's handler. Exception events mark the
// span as errored with the watcher's terminal error.
func EventHandler(next simplepipe.Handler, opts ...Option) simplepipe.Handler {
	tracer := newConfig(opts).tracerProvider.Tracer(instrumentationName)
	return func(ev simplepipe.Event) {
		attrs := []attribute.KeyValue{
			PipeEventKey.String(ev.Type.String()),
		}
		if ev.Type == simplepipe.Received {
			attrs = append(attrs, PipePayloadSizeKey.Int(len(ev.Data)))
		}
		_, span := tracer.Start(
			context.Background(),
			"simplepipe."+ev.Type.String(),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if ev.Err != nil {
			span.RecordError(ev.Err)
			span.SetStatus(codes.Error, ev.Err.Error())
		}

		next(ev)
	}
}
