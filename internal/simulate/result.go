package simulate

import (
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
)

// Result holds one Step per call, in call order.
type Result struct {
	steps []Step
}

// Step is the output of a single call.
type Step struct {
	index int
	raw   domain.InspectStep
}

func newResult(raw []domain.InspectStep) *Result {
	r := &Result{steps: make([]Step, len(raw))}
	for i, s := range raw {
		r.steps[i] = Step{index: i, raw: s}
	}
	return r
}

func (r *Result) Len() int { return len(r.steps) }

// Step returns the output of call i.
func (r *Result) Step(i int) (Step, error) {
	if i < 0 || i >= len(r.steps) {
		return Step{}, &domain.DecodeError{
			Schema: "InspectResult",
			Reason: fmt.Sprintf("step %d out of range [0,%d)", i, len(r.steps)),
		}
	}
	return r.steps[i], nil
}

// FromEnd returns the step offset positions before the last one, so
// FromEnd(0) is the last step. An accumulator chain followed by N calls
// that do not touch the accumulator is read with FromEnd(N+1).
func (r *Result) FromEnd(offset int) (Step, error) {
	return r.Step(len(r.steps) - 1 - offset)
}

// Last is FromEnd(0).
func (r *Result) Last() (Step, error) { return r.FromEnd(0) }

func (s Step) Index() int { return s.index }

// Return returns the i-th return value of the call.
func (s Step) Return(i int) ([]byte, error) {
	if i < 0 || i >= len(s.raw.ReturnValues) {
		return nil, &domain.DecodeError{
			Schema: "InspectResult",
			Reason: fmt.Sprintf("step %d has %d return values, want index %d", s.index, len(s.raw.ReturnValues), i),
		}
	}
	return s.raw.ReturnValues[i].Bytes, nil
}

// Handle returns the state of arg after this call. It is the mutated
// buffer when the call took arg by mutable reference, or the call's own
// return value when this call produced arg.
func (s Step) Handle(arg ptb.Argument) ([]byte, error) {
	ref := arg.Ref()
	for _, out := range s.raw.MutableOutputs {
		if out.Arg == ref {
			return out.Bytes, nil
		}
	}
	if ref.Kind == domain.ArgResult && int(ref.Index) == s.index && len(s.raw.ReturnValues) > 0 {
		return s.raw.ReturnValues[0].Bytes, nil
	}
	return nil, &domain.DecodeError{
		Schema: "InspectResult",
		Reason: fmt.Sprintf("step %d holds no output for %s", s.index, arg),
	}
}
