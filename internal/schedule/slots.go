package schedule

// GenerateSlots expands a working window into the ordered candidate slot
// start times. A slot is emitted only if it fits entirely before end, so a
// trailing partial window produces nothing. Windows shorter than one slot
// yield an empty sequence, not an error.
func GenerateSlots(start, end TimeOfDay, slotMinutes int) []TimeOfDay {
	if slotMinutes <= 0 || end <= start {
		return nil
	}

	var slots []TimeOfDay
	for t := start; t+TimeOfDay(slotMinutes) <= end; t += TimeOfDay(slotMinutes) {
		slots = append(slots, t)
	}
	return slots
}
