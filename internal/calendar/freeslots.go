package calendar

// MergeSlots sorts busy intervals and coalesces overlapping or touching
// ones. Empty and inverted intervals are dropped.
func MergeSlots(slots []TimeSlot) []TimeSlot {
	in := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.End.After(s.Start) {
			in = append(in, s)
		}
	}
	SortSlots(in)

	var out []TimeSlot
	for _, s := range in {
		if n := len(out); n > 0 && !s.Start.After(out[n-1].End) {
			if s.End.After(out[n-1].End) {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// ComplementSlots returns the gaps of window not covered by busy, clipped
// to the window, in order.
func ComplementSlots(window TimeSlot, busy []TimeSlot) []TimeSlot {
	if !window.End.After(window.Start) {
		return nil
	}
	var free []TimeSlot
	cursor := window.Start
	for _, b := range MergeSlots(busy) {
		if !b.End.After(window.Start) {
			continue
		}
		if !b.Start.Before(window.End) {
			break
		}
		if b.Start.After(cursor) {
			free = append(free, TimeSlot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if window.End.After(cursor) {
		free = append(free, TimeSlot{Start: cursor, End: window.End})
	}
	return free
}
