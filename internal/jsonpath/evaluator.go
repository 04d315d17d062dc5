package jsonpath

import (
	"fmt"

	"github.com/streamshard/streamshard/internal/jsontok"
)

// DepthOverflowError is returned when a document nests past the evaluator's
// depth ceiling (§5). No records past the overflow point are emitted.
type DepthOverflowError struct {
	Limit int
}

func (e *DepthOverflowError) Error() string {
	return fmt.Sprintf("jsonpath: nesting depth exceeds limit of %d", e.Limit)
}

// Record is one delimited, fully-received JSON value matched by the
// compiled path (§4.4.4). Value is a private copy — it stays valid across
// later buffer reclamation and Feed calls.
type Record struct {
	Start int64
	End   int64
	Value []byte
}

type activeStep struct {
	step *Step
}

type pendingChild struct {
	active           []activeStep
	isRecord         bool
	filterCandidates []*Step
}

type frame struct {
	isArray          bool
	nextIndex        int64
	active           []activeStep
	isRecord         bool
	filterCandidates []*Step
	start            int
	deferredSteps    []*Step
	childSpans       [][2]int
}

// Evaluator is the streaming JSONPath matcher (C4). It owns the stream
// buffer exclusively and is driven by repeated calls to Feed as Body frames
// arrive; it never blocks. The one place it tokenizes bytes a second time
// is a filter candidate: its completed span is re-read by materialize to
// build the node the filter runs against.
type Evaluator struct {
	prog *Program
	tok  *jsontok.Tokenizer

	buf  []byte
	base int64

	frames      []frame
	childPending *pendingChild

	depthLimit       int
	maxRecordSpan    int64
	maxRetainedBytes int64

	terminated bool
	termErr    error
}

// Resource ceilings from §5's table, all overridable on an Evaluator
// before the first Feed call.
const (
	DefaultDepthLimit       = 512
	DefaultMaxRecordSpan    = 64 * 1024 * 1024
	DefaultMaxRetainedBytes = 16 * 1024 * 1024
)

// RecordSpanTooLargeError is returned when a single record would exceed
// MaxRecordSpan bytes before its closing token arrives.
type RecordSpanTooLargeError struct {
	Limit int64
}

func (e *RecordSpanTooLargeError) Error() string {
	return fmt.Sprintf("jsonpath: record span exceeds limit of %d bytes", e.Limit)
}

// RetainedBufferTooLargeError is returned when the unreclaimed buffer
// prefix grows past MaxRetainedBytes — every open frame still needing its
// own span is pinning bytes further back than the cap allows.
type RetainedBufferTooLargeError struct {
	Limit int64
}

func (e *RetainedBufferTooLargeError) Error() string {
	return fmt.Sprintf("jsonpath: retained buffer exceeds limit of %d bytes", e.Limit)
}

// New returns an Evaluator for the compiled program prog.
func New(prog *Program) *Evaluator {
	return &Evaluator{
		prog:             prog,
		tok:              jsontok.New(),
		depthLimit:       DefaultDepthLimit,
		maxRecordSpan:    DefaultMaxRecordSpan,
		maxRetainedBytes: DefaultMaxRetainedBytes,
	}
}

// SetDepthLimit overrides the JSON nesting depth ceiling (§5).
func (e *Evaluator) SetDepthLimit(n int) { e.depthLimit = n }

// SetMaxRecordSpan overrides the single-record-span ceiling (§5).
func (e *Evaluator) SetMaxRecordSpan(n int64) { e.maxRecordSpan = n }

// SetMaxRetainedBytes overrides the retained-buffer-prefix ceiling (§5).
func (e *Evaluator) SetMaxRetainedBytes(n int64) { e.maxRetainedBytes = n }

// Feed appends data to the stream buffer and advances the evaluator as far
// as the tokenizer allows, returning any records delimited during this
// call. Once Feed returns a non-nil error the evaluator is terminated —
// per §4.4.7 there is no partial success after an error, and every
// subsequent Feed call returns the same error.
func (e *Evaluator) Feed(data []byte) ([]Record, error) {
	if e.terminated {
		return nil, e.termErr
	}
	e.buf = append(e.buf, data...)
	if int64(len(e.buf)) > e.maxRetainedBytes {
		err := &RetainedBufferTooLargeError{Limit: e.maxRetainedBytes}
		e.terminate(err)
		return nil, err
	}

	var out []Record
	for {
		tk, err := e.tok.Next(e.buf)
		if err != nil {
			e.terminate(err)
			return out, err
		}
		if tk.Type == jsontok.NeedMoreInput {
			return out, nil
		}
		recs, err := e.handleToken(tk)
		out = append(out, recs...)
		if err != nil {
			e.terminate(err)
			return out, err
		}
		if int64(len(e.buf)) > e.maxRetainedBytes {
			err := &RetainedBufferTooLargeError{Limit: e.maxRetainedBytes}
			e.terminate(err)
			return out, err
		}
	}
}

// Close forces completion of any in-flight scalar scan once the caller
// knows the stream has ended (a BodyFrame with IsFinal set, or the wire's
// EndFrame) and returns any record that scan completes. A number whose
// final byte is also the document's final byte never sees a delimiter to
// drive it out of the tokenizer's resumption state on its own — a
// bare-scalar body like 42 would otherwise sit unflushed forever. A
// keyword still missing letters at that point is reported as an error.
// Close is idempotent after
// termination: once the evaluator has terminated, Close returns the same
// error Feed would.
func (e *Evaluator) Close() ([]Record, error) {
	if e.terminated {
		return nil, e.termErr
	}
	tk, err := e.tok.Finish(e.buf)
	if err != nil {
		e.terminate(err)
		return nil, err
	}
	if tk.Type == jsontok.NeedMoreInput {
		return nil, nil
	}
	recs, err := e.handleToken(tk)
	if err != nil {
		e.terminate(err)
		return recs, err
	}
	return recs, nil
}

func (e *Evaluator) terminate(err error) {
	e.terminated = true
	e.termErr = err
	e.buf = nil
	e.frames = nil
}

func (e *Evaluator) topFrame() *frame { return &e.frames[len(e.frames)-1] }

func (e *Evaluator) handleToken(tk jsontok.Token) ([]Record, error) {
	switch tk.Type {
	case jsontok.Key:
		name := decodeString(e.buf[tk.Offset : tk.Offset+tk.Len])
		e.childPending = e.computeObjectChildPending(e.topFrame(), name)
		return nil, nil
	case jsontok.ObjectStart, jsontok.ArrayStart:
		pc := e.resolvePendingForValueStart()
		return e.pushContainer(tk, pc)
	case jsontok.Value:
		pc := e.resolvePendingForValueStart()
		start, end := tk.Offset, tk.Offset+tk.Len
		if tk.Kind == jsontok.KindString {
			// The tokenizer's string span excludes the quotes; a record is
			// the raw JSON text of the value, so widen it to include them.
			start, end = start-1, end+1
		}
		return e.finishValue(pc.isRecord, pc.filterCandidates, start, end)
	case jsontok.ObjectEnd, jsontok.ArrayEnd:
		return e.closeContainer(tk)
	}
	return nil, nil
}

func (e *Evaluator) resolvePendingForValueStart() *pendingChild {
	if len(e.frames) == 0 {
		if e.childPending != nil {
			pc := e.childPending
			e.childPending = nil
			return pc
		}
		if e.prog.WholeDocument {
			return &pendingChild{isRecord: true}
		}
		return &pendingChild{active: stepsAtSegment(e.prog, 0)}
	}
	top := e.topFrame()
	if top.isArray {
		idx := top.nextIndex
		top.nextIndex++
		return e.computeArrayChildPending(top, idx)
	}
	pc := e.childPending
	e.childPending = nil
	if pc == nil {
		pc = &pendingChild{}
	}
	return pc
}

func stepsAtSegment(prog *Program, seg int) []activeStep {
	var out []activeStep
	for i := range prog.Steps {
		if prog.Steps[i].Segment == seg {
			out = append(out, activeStep{step: &prog.Steps[i]})
		}
	}
	return out
}

func (e *Evaluator) computeObjectChildPending(f *frame, name string) *pendingChild {
	pc := &pendingChild{}
	for _, as := range f.active {
		s := as.step
		if s.Descendant {
			pc.active = append(pc.active, as)
		}
		switch s.Kind {
		case StepFilter:
			pc.filterCandidates = append(pc.filterCandidates, s)
			continue
		case StepName:
			if s.Name != name {
				continue
			}
		case StepWildcard:
			// matches every member
		default:
			continue // index/slice selectors never apply to object members
		}
		if s.IsLast {
			pc.isRecord = true
		} else {
			pc.active = append(pc.active, stepsAtSegment(e.prog, s.Segment+1)...)
		}
	}
	return pc
}

// classifyIndexStep reports whether resolving step s against an array
// child requires knowing the array's final length — true for negative
// indices, negative bounds, or a negative step. These selectors cannot be
// matched incrementally; the evaluator defers them to ArrayEnd and, to keep
// that tractable, only honors them when they are the path's final segment
// (closeContainer skips deferred steps whose IsLast is false, and
// finishValue applies the same IsLast check to filter candidates).
func classifyIndexStep(s *Step) bool {
	switch s.Kind {
	case StepIndex:
		return s.Index < 0
	case StepSlice:
		sl := s.Slice
		if sl.Step < 0 {
			return true
		}
		if sl.HasStart && sl.Start < 0 {
			return true
		}
		if sl.HasEnd && sl.End < 0 {
			return true
		}
	}
	return false
}

func matchForwardIndexStep(s *Step, idx int64) bool {
	switch s.Kind {
	case StepIndex:
		return s.Index == idx
	case StepSlice:
		sl := s.Slice
		step := sl.Step
		if step == 0 {
			step = 1
		}
		start := int64(0)
		if sl.HasStart {
			start = sl.Start
		}
		if idx < start {
			return false
		}
		if sl.HasEnd && idx >= sl.End {
			return false
		}
		return (idx-start)%step == 0
	case StepWildcard:
		return true
	}
	return false
}

func (e *Evaluator) computeArrayChildPending(f *frame, idx int64) *pendingChild {
	pc := &pendingChild{}
	for _, as := range f.active {
		s := as.step
		if s.Descendant {
			pc.active = append(pc.active, as)
		}
		switch s.Kind {
		case StepFilter:
			pc.filterCandidates = append(pc.filterCandidates, s)
			continue
		case StepIndex, StepSlice:
			if classifyIndexStep(s) {
				continue
			}
			if !matchForwardIndexStep(s, idx) {
				continue
			}
		case StepWildcard:
			// matches every element
		default:
			continue // name selectors never apply to array elements
		}
		if s.IsLast {
			pc.isRecord = true
		} else {
			pc.active = append(pc.active, stepsAtSegment(e.prog, s.Segment+1)...)
		}
	}
	return pc
}

func (e *Evaluator) pushContainer(tk jsontok.Token, pc *pendingChild) ([]Record, error) {
	if len(e.frames) >= e.depthLimit {
		return nil, &DepthOverflowError{Limit: e.depthLimit}
	}
	f := frame{
		isArray:          tk.Type == jsontok.ArrayStart,
		active:           pc.active,
		isRecord:         pc.isRecord,
		filterCandidates: pc.filterCandidates,
		start:            tk.Offset,
	}
	if f.isArray {
		for _, as := range f.active {
			if classifyIndexStep(as.step) {
				f.deferredSteps = append(f.deferredSteps, as.step)
			}
		}
	}
	e.frames = append(e.frames, f)
	return nil, nil
}

func (e *Evaluator) closeContainer(tk jsontok.Token) ([]Record, error) {
	if len(e.frames) == 0 {
		return nil, fmt.Errorf("jsonpath: unbalanced closing token at offset %d", tk.Offset)
	}
	f := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	end := tk.Offset + tk.Len

	var out []Record
	if len(f.deferredSteps) > 0 {
		length := int64(len(f.childSpans))
		for _, s := range f.deferredSteps {
			if !s.IsLast {
				continue
			}
			for _, idx := range deferredIndices(s, length) {
				if idx < 0 || idx >= length {
					continue
				}
				span := f.childSpans[idx]
				out = append(out, e.makeRecord(span[0], span[1]))
			}
		}
	}

	recs, err := e.finishValue(f.isRecord, f.filterCandidates, f.start, end)
	out = append(out, recs...)
	return out, err
}

// finishValue runs once a value (scalar, immediately; container, at its
// matching close) is fully known. It emits a record for a terminal
// positional match, evaluates any pending filter candidates now that the
// candidate's bytes are complete, records this child's span in its parent
// array frame when deferred index resolution needs it, and reclaims buffer
// space once nothing below could still reference it.
func (e *Evaluator) finishValue(isRecord bool, filterCandidates []*Step, start, end int) ([]Record, error) {
	if (isRecord || len(filterCandidates) > 0) && int64(end-start) > e.maxRecordSpan {
		return nil, &RecordSpanTooLargeError{Limit: e.maxRecordSpan}
	}
	var out []Record
	if isRecord {
		out = append(out, e.makeRecord(start, end))
	}
	for _, fc := range filterCandidates {
		if !fc.IsLast {
			continue
		}
		node, err := materialize(e.buf[start:end])
		if err != nil {
			return out, err
		}
		if evalFilter(fc.Filter, node) {
			out = append(out, e.makeRecord(start, end))
		}
	}
	if len(e.frames) > 0 {
		parent := e.topFrame()
		if parent.isArray && len(parent.deferredSteps) > 0 {
			parent.childSpans = append(parent.childSpans, [2]int{start, end})
		}
	}
	// Always attempt reclamation, not just when this value itself matched —
	// otherwise a document with no matches at all would retain its entire
	// body, defeating the point of streaming evaluation.
	e.reclaim()
	return out, nil
}

func (e *Evaluator) makeRecord(start, end int) Record {
	v := make([]byte, end-start)
	copy(v, e.buf[start:end])
	return Record{Start: e.base + int64(start), End: e.base + int64(end), Value: v}
}

// reclaim advances the buffer prefix past every byte no open frame still
// references, per §4.4.5. It runs after every finished value; when it
// finds a reclaimable prefix it shifts the retained bytes down to offset
// 0, so each call costs time proportional to the bytes still retained.
func (e *Evaluator) reclaim() {
	minKeep := e.tok.Pos()
	for i := range e.frames {
		f := &e.frames[i]
		// A frame only pins the buffer back to its own opening byte when it
		// will itself need that span later: as a whole-value record, as a
		// filter candidate, or to resolve deferred (negative-index) child
		// spans. A frame that is purely a waypoint to deeper matches never
		// needs its own bytes again once its live children have been
		// dispatched — this is what keeps an unbounded top-level array
		// streamable instead of pinning the whole response in memory.
		if !f.isRecord && len(f.filterCandidates) == 0 && len(f.deferredSteps) == 0 {
			continue
		}
		if f.start < minKeep {
			minKeep = f.start
		}
	}
	if minKeep <= 0 {
		return
	}
	copy(e.buf, e.buf[minKeep:])
	e.buf = e.buf[:len(e.buf)-minKeep]
	e.tok.Rebase(minKeep)
	for i := range e.frames {
		e.frames[i].start -= minKeep
		for j := range e.frames[i].childSpans {
			e.frames[i].childSpans[j][0] -= minKeep
			e.frames[i].childSpans[j][1] -= minKeep
		}
	}
	e.base += int64(minKeep)
}
