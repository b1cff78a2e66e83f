package model

import "fmt"

const (
	FirstSlotHour = 6
	LastSlotHour  = 22
)

// TimeSlots returns the hourly marks offered by the schedule generator,
// "06:00" through "22:00".
func TimeSlots() []string {
	out := make([]string, 0, LastSlotHour-FirstSlotHour+1)
	for h := FirstSlotHour; h <= LastSlotHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

// SlotIndex returns the position of s in TimeSlots or -1.
func SlotIndex(s string) int {
	for i, v := range TimeSlots() {
		if v == s {
			return i
		}
	}
	return -1
}
