package selectpad

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/selectpad/internal/tensor"
)

// Row is the view of one input row handed to a selection predicate.
type Row struct {
	data  []byte
	dtype tensor.DataType
	base  int
	width int

	// Mask is the mask value for the row; 1 when the criterion takes no mask.
	Mask float32
}

// Len returns the number of features in the row.
func (r Row) Len() int {
	return r.width
}

// At returns feature j as float32.
func (r Row) At(j int) float32 {
	return tensor.Load(r.data, r.dtype, r.base+j)
}

// Predicate reports whether a row is selected.
type Predicate func(r Row, threshold float32) bool

// Criterion is a named row-selection rule.
type Criterion struct {
	// ID is the stable identifier written into serialized plugins. Must be > 0.
	ID int32
	// Name is the value of the "criterion" attribute.
	Name string
	// Inputs is 1 for data-only rules and 2 for rules that also read a
	// [batch, rows] mask tensor.
	Inputs int
	// Select evaluates one row.
	Select Predicate

	reduce *rowReduce // WGSL form, nil for host-only criteria
}

// Built-in criterion ids.
const (
	RowSumPositive int32 = iota + 1
	RowSumAbove
	RowMaxAbove
	RowAnyNonzero
	MaskNonzero
)

var criteria = struct {
	sync.RWMutex
	byName map[string]*Criterion
	byID   map[int32]*Criterion
}{
	byName: make(map[string]*Criterion),
	byID:   make(map[int32]*Criterion),
}

// RegisterCriterion adds a selection rule. Names and ids are unique for the
// life of the process.
func RegisterCriterion(c Criterion) error {
	switch {
	case c.ID <= 0:
		return errors.Errorf("criterion %q: id must be positive, got %d", c.Name, c.ID)
	case c.Name == "":
		return errors.Errorf("criterion %d: empty name", c.ID)
	case c.Inputs != 1 && c.Inputs != 2:
		return errors.Errorf("criterion %q: inputs must be 1 or 2, got %d", c.Name, c.Inputs)
	case c.Select == nil:
		return errors.Errorf("criterion %q: nil predicate", c.Name)
	}

	criteria.Lock()
	defer criteria.Unlock()
	if _, ok := criteria.byName[c.Name]; ok {
		return errors.Errorf("criterion %q already registered", c.Name)
	}
	if prev, ok := criteria.byID[c.ID]; ok {
		return errors.Errorf("criterion id %d already used by %q", c.ID, prev.Name)
	}
	criteria.byName[c.Name] = &c
	criteria.byID[c.ID] = &c
	return nil
}

// LookupCriterion returns the criterion registered under name.
func LookupCriterion(name string) (*Criterion, bool) {
	criteria.RLock()
	defer criteria.RUnlock()
	c, ok := criteria.byName[name]
	return c, ok
}

func criterionByID(id int32) (*Criterion, bool) {
	criteria.RLock()
	defer criteria.RUnlock()
	c, ok := criteria.byID[id]
	return c, ok
}

// CriterionNames returns the registered criterion names, sorted.
func CriterionNames() []string {
	criteria.RLock()
	names := make([]string, 0, len(criteria.byName))
	for name := range criteria.byName {
		names = append(names, name)
	}
	criteria.RUnlock()
	sort.Strings(names)
	return names
}

func rowSum(r Row) float32 {
	var s float32
	for j := 0; j < r.Len(); j++ {
		s += r.At(j)
	}
	return s
}

func init() {
	builtins := []Criterion{
		{
			ID: RowSumPositive, Name: "row_sum_positive", Inputs: 1,
			Select: func(r Row, _ float32) bool { return rowSum(r) > 0 },
			reduce: &rowReduce{init: "0.0", step: "acc + v", test: "acc > 0.0"},
		},
		{
			ID: RowSumAbove, Name: "row_sum_above", Inputs: 1,
			Select: func(r Row, threshold float32) bool { return rowSum(r) > threshold },
			reduce: &rowReduce{init: "0.0", step: "acc + v", test: "acc > params.threshold"},
		},
		{
			ID: RowMaxAbove, Name: "row_max_above", Inputs: 1,
			Select: func(r Row, threshold float32) bool {
				for j := 0; j < r.Len(); j++ {
					if r.At(j) > threshold {
						return true
					}
				}
				return false
			},
			reduce: &rowReduce{init: "-3.4e38", step: "max(acc, v)", test: "acc > params.threshold"},
		},
		{
			ID: RowAnyNonzero, Name: "row_any_nonzero", Inputs: 1,
			Select: func(r Row, _ float32) bool {
				for j := 0; j < r.Len(); j++ {
					if r.At(j) != 0 {
						return true
					}
				}
				return false
			},
			reduce: &rowReduce{init: "0.0", step: "select(acc, 1.0, v != 0.0)", test: "acc != 0.0"},
		},
		{
			ID: MaskNonzero, Name: "mask", Inputs: 2,
			Select: func(r Row, _ float32) bool { return r.Mask != 0 },
		},
	}
	for _, c := range builtins {
		if err := RegisterCriterion(c); err != nil {
			panic(err)
		}
	}
}
