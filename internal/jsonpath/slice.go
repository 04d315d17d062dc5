package jsonpath

// normalizeSlice resolves a Slice's bounds against a known array length,
// following RFC 9535 §2.3.4's step-sign-dependent normalization.
func normalizeSlice(sl Slice, length int64) (start, end int64) {
	step := sl.Step
	if step == 0 {
		step = 1
	}
	normIdx := func(i int64) int64 {
		if i < 0 {
			return i + length
		}
		return i
	}
	if step > 0 {
		if sl.HasStart {
			start = normIdx(sl.Start)
			if start < 0 {
				start = 0
			}
			if start > length {
				start = length
			}
		} else {
			start = 0
		}
		if sl.HasEnd {
			end = normIdx(sl.End)
			if end < 0 {
				end = 0
			}
			if end > length {
				end = length
			}
		} else {
			end = length
		}
		return start, end
	}

	if sl.HasStart {
		start = normIdx(sl.Start)
		if start < -1 {
			start = -1
		}
		if start > length-1 {
			start = length - 1
		}
	} else {
		start = length - 1
	}
	if sl.HasEnd {
		end = normIdx(sl.End)
		if end < -1 {
			end = -1
		}
		if end > length-1 {
			end = length - 1
		}
	} else {
		end = -1
	}
	return start, end
}

// deferredIndices resolves a negative-index or negative-step selector
// against an array whose final length is now known, returning the matched
// element indices in RFC 9535 §2.3.4 iteration order (which, for a
// negative step, runs from high to low — the order a reverse slice must
// emit its records in).
func deferredIndices(s *Step, length int64) []int64 {
	switch s.Kind {
	case StepIndex:
		norm := s.Index
		if norm < 0 {
			norm += length
		}
		if norm < 0 || norm >= length {
			return nil
		}
		return []int64{norm}
	case StepSlice:
		step := s.Slice.Step
		if step == 0 {
			step = 1
		}
		start, end := normalizeSlice(s.Slice, length)
		var out []int64
		if step > 0 {
			for i := start; i < end; i += step {
				out = append(out, i)
			}
		} else {
			for i := start; i > end; i += step {
				out = append(out, i)
			}
		}
		return out
	}
	return nil
}
