package enrichment

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoMatch means no registered pattern recognised the event; the stub stands.
	ErrNoMatch = errors.New("no enrichment pattern matched")
	// ErrMalformed means a pattern matched but the fields could not be extracted.
	ErrMalformed = errors.New("matched pattern could not be parsed")
)

// Input is the event metadata enrichers look at.
type Input struct {
	Provider string
	Sender   string
	Subject  string
}

// Result is a higher-confidence place and amount for a receipt.
type Result struct {
	Place  string
	Amount decimal.Decimal
}

// Enricher pairs a matcher with the extractor that runs when it matches.
type Enricher struct {
	Name    string
	Match   func(Input) bool
	Extract func(Input) (Result, error)
}

// Registry tries enrichers in registration order; the first match wins.
type Registry struct {
	mu        sync.RWMutex
	enrichers []Enricher
}

func NewRegistry(enrichers ...Enricher) *Registry {
	r := &Registry{}
	for _, e := range enrichers {
		r.Register(e)
	}
	return r
}

func (r *Registry) Register(e Enricher) {
	if e.Match == nil || e.Extract == nil {
		panic(fmt.Sprintf("enrichment: enricher %q needs Match and Extract", e.Name))
	}
	r.mu.Lock()
	r.enrichers = append(r.enrichers, e)
	r.mu.Unlock()
}

// Names lists registered enrichers in evaluation order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.enrichers))
	for _, e := range r.enrichers {
		names = append(names, e.Name)
	}
	return names
}

// Enrich runs the first matching enricher and returns its result and name.
func (r *Registry) Enrich(in Input) (Result, string, error) {
	if r == nil {
		return Result{}, "", ErrNoMatch
	}
	r.mu.RLock()
	enrichers := r.enrichers
	r.mu.RUnlock()

	for _, e := range enrichers {
		if !e.Match(in) {
			continue
		}
		res, err := e.Extract(in)
		if err != nil {
			return Result{}, e.Name, err
		}
		if err := validate(res); err != nil {
			return Result{}, e.Name, err
		}
		res.Place = strings.TrimSpace(res.Place)
		res.Amount = res.Amount.Round(2)
		return res, e.Name, nil
	}
	return Result{}, "", ErrNoMatch
}

func validate(res Result) error {
	if strings.TrimSpace(res.Place) == "" {
		return fmt.Errorf("%w: empty place", ErrMalformed)
	}
	if res.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrMalformed, res.Amount.String())
	}
	return nil
}
