// Package anonymous provides the strategy that performs no authentication.
// Every request reaches its handler unless a host-level filter rejects it.
package anonymous

import (
	"github.com/rhuss/lens/pkg/auth"
	"github.com/rhuss/lens/pkg/settings"
)

// Strategy registers nothing. It is also the fallback when no known
// strategy is configured.
type Strategy struct{}

// New returns the anonymous strategy.
func New() *Strategy { return &Strategy{} }

var _ auth.Strategy = (*Strategy)(nil)

func (s *Strategy) Name() string { return settings.Anonymous }

// Configure registers no stages and no requirements. The hooks are not invoked.
func (s *Strategy) Configure(b auth.PipelineBuilder, _ func(*auth.AuthorizationOptions), _ func(*auth.TokenValidationOptions)) error {
	return nil
}

// ApplyRequestFilters does not add the authorize filter.
func (s *Strategy) ApplyRequestFilters(auth.FilterRegistry) {}

func (s *Strategy) DescribeForAPIDocs(auth.DocBuilder, settings.Docs) {}
