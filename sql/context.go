// Copyright 2024-2025 Kestrel Data, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sql

import (
	"context"
	"sync"

	"github.com/google/uuid"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

// QueryProperties carries the per-query inputs to the core: the query id,
// session variables, recognized hints, and configuration.
type QueryProperties struct {
	QueryID string
	Hints   []string
	Config  *Config

	mu        sync.Mutex
	variables map[string]interface{}
}

// NewQueryProperties builds properties with a fresh query id and default
// configuration.
func NewQueryProperties() *QueryProperties {
	return &QueryProperties{
		QueryID:   uuid.NewString(),
		Config:    NewConfig(),
		variables: make(map[string]interface{}),
	}
}

// Variable returns a session variable.
func (p *QueryProperties) Variable(name string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.variables[name]
	return v, ok
}

// SetVariable sets a session variable.
func (p *QueryProperties) SetVariable(name string, value interface{}) {
	p.mu.Lock()
	p.variables[name] = value
	p.mu.Unlock()
}

// HasHint reports whether the query carries the named hint.
func (p *QueryProperties) HasHint(name string) bool {
	for _, h := range p.Hints {
		if h == name {
			return true
		}
	}
	return false
}

// Context wraps a standard context with the query state every part of the
// core needs: properties, statistics, a query-scoped logger, and a tracing
// span. Cancellation is cooperative; engines check Err between operator
// calls.
type Context struct {
	context.Context
	Props *QueryProperties
	Stats *QueryStatistics

	logger *logrus.Entry
	tracer opentracing.Tracer
	span   opentracing.Span
}

// ContextOption configures a Context under construction.
type ContextOption func(*Context)

// WithProperties sets the query properties.
func WithProperties(props *QueryProperties) ContextOption {
	return func(c *Context) {
		c.Props = props
	}
}

// WithLogger sets the base logger the query-scoped entry derives from.
func WithLogger(logger *logrus.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger.WithField("query", "")
	}
}

// WithTracer sets the tracer spans are created against.
func WithTracer(tracer opentracing.Tracer) ContextOption {
	return func(c *Context) {
		c.tracer = tracer
	}
}

// NewContext builds a query context. Omitted options fall back to a fresh
// QueryProperties, the standard logger, and the global tracer.
func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	c := &Context{Context: ctx}
	for _, opt := range opts {
		opt(c)
	}
	if c.Props == nil {
		c.Props = NewQueryProperties()
	}
	if c.tracer == nil {
		c.tracer = opentracing.GlobalTracer()
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger().WithField("query", c.Props.QueryID)
	} else {
		c.logger = c.logger.WithField("query", c.Props.QueryID)
	}
	c.Stats = Statistics().ForQuery(c.Props.QueryID)
	return c
}

// NewEmptyContext builds a context suitable for tests.
func NewEmptyContext() *Context {
	return NewContext(context.Background())
}

// Logger returns the query-scoped logger.
func (c *Context) Logger() *logrus.Entry {
	return c.logger
}

// Span creates a child span of the context's current span and returns a
// derived context carrying it. Callers must Finish the span.
func (c *Context) Span(opName string, opts ...opentracing.StartSpanOption) (opentracing.Span, *Context) {
	if c.span != nil {
		opts = append(opts, opentracing.ChildOf(c.span.Context()))
	}
	span := c.tracer.StartSpan(opName, opts...)
	nc := *c
	nc.span = span
	return span, &nc
}

// Config returns the query configuration.
func (c *Context) Config() *Config {
	return c.Props.Config
}
