// Package strategy turns an extraction input into an ordered list of plans,
// each pairing a content preparation mode with a provider.
package strategy

import (
	"fmt"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/provider"
	"recipeengine/internal/core/reduce"
)

// InputKind is what the caller handed us.
type InputKind string

const (
	InputURL     InputKind = "url"
	InputImage   InputKind = "image"
	InputRawHTML InputKind = "raw_html"
)

// Strategy names. A plan list never repeats a (strategy, provider) pair.
const (
	StrategyURLDirect    = "url-direct"
	StrategyHTMLFallback = "html-fallback"
	StrategyImage        = "image"
	StrategyMultiImage   = "multi-image"
)

// Input is the selection-relevant slice of an extraction request.
type Input struct {
	Kind       InputKind
	ImageCount int
	// ForceStrategy collapses the plan list to the single matching entry.
	ForceStrategy string
	// PreferredProviders overrides the configured provider order for image
	// inputs.
	PreferredProviders []string
}

// Plan is one (content preparation, provider) pairing to attempt.
type Plan struct {
	Strategy    string
	ContentKind provider.ContentKind
	// ReduceMode applies when ContentKind is KindText and content comes
	// from HTML.
	ReduceMode reduce.Mode
	Provider   provider.Adapter
	// NeedsFetch marks plans that retrieve the URL locally before reducing.
	NeedsFetch bool
}

// Selector builds plan lists. Provider names are resolved against the
// registry at construction time so unknown names fail here, not mid-request.
type Selector struct {
	fast    provider.Adapter
	capable provider.Adapter
	reg     *provider.Registry
}

func NewSelector(reg *provider.Registry, fastName, capableName string) (*Selector, error) {
	fast, err := reg.Get(fastName)
	if err != nil {
		return nil, fmt.Errorf("fast provider: %w", err)
	}
	capable, err := reg.Get(capableName)
	if err != nil {
		return nil, fmt.Errorf("capable provider: %w", err)
	}
	return &Selector{fast: fast, capable: capable, reg: reg}, nil
}

// Plans returns the ordered plan list for in. An unsatisfiable
// ForceStrategy fails fast with a fatal error and no attempts are made.
func (s *Selector) Plans(in Input) ([]Plan, error) {
	plans, err := s.defaultPlans(in)
	if err != nil {
		return nil, err
	}

	if in.ForceStrategy != "" {
		for _, p := range plans {
			if p.Strategy == in.ForceStrategy {
				return []Plan{p}, nil
			}
		}
		return nil, fault.New(fault.CodeProviderFatal,
			"forced strategy %q does not apply to %s input", in.ForceStrategy, in.Kind)
	}
	return plans, nil
}

func (s *Selector) defaultPlans(in Input) ([]Plan, error) {
	switch in.Kind {
	case InputURL:
		return []Plan{
			{Strategy: StrategyURLDirect, ContentKind: provider.KindURL, Provider: s.fast},
			{Strategy: StrategyHTMLFallback, ContentKind: provider.KindText, ReduceMode: reduce.ModeGeneral, Provider: s.capable, NeedsFetch: true},
		}, nil

	case InputRawHTML:
		// Caller-supplied HTML skips fetching; the capable provider leads
		// and the fast provider backs it up on a tighter budget.
		return []Plan{
			{Strategy: StrategyHTMLFallback, ContentKind: provider.KindText, ReduceMode: reduce.ModeGeneral, Provider: s.capable},
			{Strategy: StrategyHTMLFallback, ContentKind: provider.KindText, ReduceMode: reduce.ModeCompact, Provider: s.fast},
		}, nil

	case InputImage:
		return s.imagePlans(in)

	default:
		return nil, fault.New(fault.CodeProviderFatal, "unknown input kind %q", in.Kind)
	}
}

func (s *Selector) imagePlans(in Input) ([]Plan, error) {
	strategyName := StrategyImage
	if in.ImageCount > 1 {
		strategyName = StrategyMultiImage
	}

	order := in.PreferredProviders
	if len(order) == 0 {
		order = []string{s.fast.Name(), s.capable.Name()}
	}

	var plans []Plan
	seen := make(map[string]bool)
	for _, name := range order {
		adapter, err := s.reg.Get(name)
		if err != nil {
			return nil, fault.Wrap(fault.CodeProviderFatal, err, "image plan provider")
		}
		if !adapter.SupportsVision() || seen[adapter.Name()] {
			continue
		}
		seen[adapter.Name()] = true
		plans = append(plans, Plan{
			Strategy:    strategyName,
			ContentKind: provider.KindImage,
			Provider:    adapter,
		})
	}
	if len(plans) == 0 {
		return nil, fault.New(fault.CodeProviderFatal, "no vision-capable provider available")
	}
	return plans, nil
}
