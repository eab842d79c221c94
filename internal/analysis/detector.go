package analysis

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every failed post-recovery check.
var ErrInvariant = errors.New("invariant violated")

// Checker verifies one property of a recovered Program.
type Checker interface {
	Name() string
	Check(p *Program) error
}

// CheckChain runs several checkers and collects every failure.
type CheckChain struct {
	checkers []Checker
}

// NewCheckChain creates a new check chain.
func NewCheckChain(checkers ...Checker) *CheckChain {
	return &CheckChain{checkers: checkers}
}

// DefaultChecks returns the coverage, ordering and conservation checks.
func DefaultChecks() *CheckChain {
	return NewCheckChain(CoverageCheck{}, OrderingCheck{}, ConservationCheck{})
}

// Check runs all checkers in sequence.
func (cc *CheckChain) Check(p *Program) error {
	var errs []error
	for _, c := range cc.checkers {
		if err := c.Check(p); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvariant, c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CoverageCheck requires exactly one procedure per function symbol.
type CoverageCheck struct{}

func (CoverageCheck) Name() string { return "coverage" }

func (CoverageCheck) Check(p *Program) error {
	seen := make(map[int]int, len(p.Procedures))
	for _, proc := range p.Procedures {
		seen[proc.Symbol.Index]++
	}
	for _, s := range p.Symbols {
		switch n := seen[s.Index]; n {
		case 1:
		case 0:
			return fmt.Errorf("symbol %q has no procedure", s.Name)
		default:
			return fmt.Errorf("symbol %q has %d procedures", s.Name, n)
		}
	}
	if len(p.Procedures) != len(p.Symbols) {
		return fmt.Errorf("%d procedures for %d function symbols", len(p.Procedures), len(p.Symbols))
	}
	return nil
}

// OrderingCheck requires text procedures in strictly increasing address order.
type OrderingCheck struct{}

func (OrderingCheck) Name() string { return "ordering" }

func (OrderingCheck) Check(p *Program) error {
	var prev *Procedure
	for i := range p.Procedures {
		proc := &p.Procedures[i]
		if proc.Kind != ProcText {
			continue
		}
		if prev != nil && proc.Start <= prev.Start {
			return fmt.Errorf("%s at %#x follows %s at %#x", proc.Name(), proc.Start, prev.Name(), prev.Start)
		}
		prev = proc
	}
	return nil
}

// ConservationCheck requires every decoded text instruction to be in a text
// procedure, discarded, or trimmed.
type ConservationCheck struct{}

func (ConservationCheck) Name() string { return "conservation" }

func (ConservationCheck) Check(p *Program) error {
	n := 0
	for _, proc := range p.Procedures {
		if proc.Kind == ProcText {
			n += len(proc.Insts)
		}
	}
	if got := n + p.Stats.Discarded + p.Stats.Trimmed; got != p.Stats.TextInsts {
		return fmt.Errorf("%d in procedures + %d discarded + %d trimmed != %d decoded",
			n, p.Stats.Discarded, p.Stats.Trimmed, p.Stats.TextInsts)
	}
	return nil
}
