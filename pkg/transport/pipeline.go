package transport

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/debug"
)

// Pipeline is the request pipeline strategies register into. It implements
// auth.PipelineBuilder.
//
// Authentication stages run globally through Middleware. Filters and
// authorization requirements run per endpoint through Endpoint, after
// routing, so individual endpoints can opt out with AllowAnonymous.
//
// Registration happens during startup. Middleware and Endpoint take a
// snapshot of what is registered at the time they are called.
type Pipeline struct {
	mu           sync.Mutex
	stages       []auth.Stage
	filters      []auth.Filter
	requirements []auth.Requirement
	bypass       []string
}

var _ auth.PipelineBuilder = (*Pipeline)(nil)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBypass sets the paths that skip authentication stages. A path ending
// in "/" matches its whole subtree.
func WithBypass(paths ...string) PipelineOption {
	return func(p *Pipeline) { p.bypass = slices.Clone(paths) }
}

// NewPipeline creates an empty pipeline bypassing auth.DefaultBypassEndpoints.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{bypass: slices.Clone(auth.DefaultBypassEndpoints)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddMiddleware implements auth.PipelineBuilder.
func (p *Pipeline) AddMiddleware(stage auth.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.ContainsFunc(p.stages, func(s auth.Stage) bool { return s.Name == stage.Name }) {
		debug.Log("pipeline", "stage already registered", "name", stage.Name)
		return
	}
	p.stages = append(p.stages, stage)
}

// AddRequestFilter implements auth.FilterRegistry.
func (p *Pipeline) AddRequestFilter(f auth.Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.ContainsFunc(p.filters, func(existing auth.Filter) bool { return existing.Name() == f.Name() }) {
		debug.Log("pipeline", "filter already registered", "name", f.Name())
		return
	}
	p.filters = append(p.filters, f)
}

// RegisterAuthorizationRequirement implements auth.PipelineBuilder.
func (p *Pipeline) RegisterAuthorizationRequirement(req auth.Requirement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.ContainsFunc(p.requirements, func(r auth.Requirement) bool { return r.Name() == req.Name() }) {
		debug.Log("pipeline", "requirement already registered", "name", req.Name())
		return
	}
	p.requirements = append(p.requirements, req)
}

// Registration lists the names of everything registered, in order.
type Registration struct {
	Stages       []string `json:"stages"`
	Filters      []string `json:"filters"`
	Requirements []string `json:"requirements"`
}

// Registration returns the current registration record.
func (p *Pipeline) Registration() Registration {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg := Registration{
		Stages:       make([]string, 0, len(p.stages)),
		Filters:      make([]string, 0, len(p.filters)),
		Requirements: make([]string, 0, len(p.requirements)),
	}
	for _, s := range p.stages {
		reg.Stages = append(reg.Stages, s.Name)
	}
	for _, f := range p.filters {
		reg.Filters = append(reg.Filters, f.Name())
	}
	for _, r := range p.requirements {
		reg.Requirements = append(reg.Requirements, r.Name())
	}
	return reg
}

// Middleware returns the authentication stages as one middleware. The
// first registered stage is the outermost. Bypassed paths skip all stages.
func (p *Pipeline) Middleware() Middleware {
	p.mu.Lock()
	stages := slices.Clone(p.stages)
	bypass := slices.Clone(p.bypass)
	p.mu.Unlock()

	return func(next http.Handler) http.Handler {
		authed := next
		for i := len(stages) - 1; i >= 0; i-- {
			authed = stages[i].Wrap(authed)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassed(bypass, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// EndpointOption configures a single endpoint.
type EndpointOption func(*endpointConfig)

type endpointConfig struct {
	anonymous bool
}

// AllowAnonymous lets requests without an identity reach the endpoint.
// Requirements still apply to requests that carry one.
func AllowAnonymous() EndpointOption {
	return func(c *endpointConfig) { c.anonymous = true }
}

// Endpoint wraps h with the registered filters and authorization
// requirements. Filters run in registration order and stop at the first
// one that writes a response. Requirements are evaluated against the
// request identity and a failure responds 403.
func (p *Pipeline) Endpoint(h http.Handler, opts ...EndpointOption) http.Handler {
	var cfg endpointConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p.mu.Lock()
	filters := slices.Clone(p.filters)
	requirements := slices.Clone(p.requirements)
	p.mu.Unlock()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.anonymous {
			r = r.WithContext(auth.AllowAnonymous(r.Context()))
		}

		for _, f := range filters {
			if !f.Allow(w, r) {
				return
			}
		}

		if id := auth.IdentityFromContext(r.Context()); id != nil {
			for _, req := range requirements {
				if err := req.Evaluate(id); err != nil {
					debug.Log("pipeline", "requirement failed",
						"requirement", req.Name(),
						"subject", id.Subject,
						"path", r.URL.Path,
					)
					auth.WriteError(w, err)
					return
				}
			}
		}

		h.ServeHTTP(w, r)
	})
}

func bypassed(paths []string, path string) bool {
	for _, p := range paths {
		if p == path || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}
