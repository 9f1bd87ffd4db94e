// Package partition splits an ordered list into train, validation and test sets.
//
// The split is deterministic and never shuffles: callers that want a random
// split must order the input themselves before calling Split.
package partition

import (
	"math"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

// Split names, in output order.
const (
	Train      = "train"
	Validation = "validation"
	Test       = "test"
)

// Names returns the split names in the order the partitions are laid out.
func Names() []string {
	return []string{Train, Validation, Test}
}

// Fractions are the proportions of the input that go to each split.
type Fractions struct {
	Train      float64 `json:"train" yaml:"train"`
	Validation float64 `json:"validation" yaml:"validation"`
	Test       float64 `json:"test" yaml:"test"`
}

// DefaultFractions is the 70/20/10 split.
var DefaultFractions = Fractions{Train: 0.7, Validation: 0.2, Test: 0.1}

// Validate checks that no fraction is negative and that they add up to 1 once
// rounded to two decimal places.
func (f Fractions) Validate() error {
	if f.Train < 0 || f.Validation < 0 || f.Test < 0 {
		return errs.Configf("split fractions must not be negative: %+v", f)
	}
	sum := math.Round((f.Train+f.Validation+f.Test)*100) / 100
	if sum != 1 {
		return errs.Configf("the sum of all splits should be 1, and it is %v", sum)
	}
	return nil
}

// Result holds the three contiguous partitions of the input.
type Result[T any] struct {
	Train      []T
	Validation []T
	Test       []T
}

// Get returns the partition with the given split name, or nil for an unknown name.
func (r Result[T]) Get(name string) []T {
	switch name {
	case Train:
		return r.Train
	case Validation:
		return r.Validation
	case Test:
		return r.Test
	}
	return nil
}

// Counts returns the size of each partition keyed by split name.
func (r Result[T]) Counts() map[string]int {
	return map[string]int{
		Train:      len(r.Train),
		Validation: len(r.Validation),
		Test:       len(r.Test),
	}
}

// Bounds returns the two cut points floor(n*train) and
// floor(n*train)+floor(n*validation).
func Bounds(n int, f Fractions) (int, int) {
	first := int(math.Floor(float64(n) * f.Train))
	second := first + int(math.Floor(float64(n)*f.Validation))
	if first > n {
		first = n
	}
	if second > n {
		second = n
	}
	return first, second
}

// Split slices items into train|validation|test. The partitions share the
// backing array of items; they do not overlap and cover every element once.
func Split[T any](items []T, f Fractions) (Result[T], error) {
	if err := f.Validate(); err != nil {
		return Result[T]{}, err
	}
	logging.Debugf("Partitioning training %v%%, validation %v%%, test %v%%",
		f.Train*100, f.Validation*100, f.Test*100)

	first, second := Bounds(len(items), f)
	return Result[T]{
		Train:      items[:first:first],
		Validation: items[first:second:second],
		Test:       items[second:],
	}, nil
}
