// Package model holds the domain records shared by the repository, service
// and handler layers. Structs here carry no JSON tags; handlers define their
// own response shapes.
package model

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Category is the kind of class an activity belongs to.
type Category string

const (
	CategoryYoga     Category = "yoga"
	CategoryPilates  Category = "pilates"
	CategoryCrossfit Category = "crossfit"
	CategorySpinning Category = "spinning"
	CategoryAerobics Category = "aerobics"
	CategoryStrength Category = "strength"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryYoga, CategoryPilates, CategoryCrossfit,
	CategorySpinning, CategoryAerobics, CategoryStrength,
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Day is the weekday an activity runs on. DayOpen marks an activity with no
// fixed schedule.
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
	DayOpen   Day = "open"
)

// Weekdays is the calendar order used for schedule sorting.
var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Weekday reports whether d is a calendar day (not the open sentinel).
func (d Day) Weekday() bool { return d.Index() < len(Weekdays) }

// Valid reports whether d is a weekday or DayOpen.
func (d Day) Valid() bool { return d == DayOpen || d.Weekday() }

// Index returns the schedule position of d: 0 for monday through 6 for
// sunday, 7 for the open sentinel and 8 for anything else.
func (d Day) Index() int {
	for i, v := range Weekdays {
		if d == v {
			return i
		}
	}
	if d == DayOpen {
		return len(Weekdays)
	}
	return len(Weekdays) + 1
}

// TimeOpen is accepted as a start time for open activities.
const TimeOpen = "open"

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 180
	MinCapacity        = 1
	MaxCapacity        = 50
)

// Activity is a scheduled class. Enrolled is derived from the enrollment
// ledger at read time and is never persisted on the activity row.
type Activity struct {
	ID              uint64
	Title           string
	Category        Category
	Description     string
	Day             Day
	StartTime       string
	DurationMinutes int
	MaxCapacity     int
	Instructor      string
	PhotoURL        string
	Enrolled        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available returns the number of free places.
func (a Activity) Available() int {
	n := a.MaxCapacity - a.Enrolled
	if n < 0 {
		return 0
	}
	return n
}

// Spec returns the editable attributes of a.
func (a Activity) Spec() ActivitySpec {
	return ActivitySpec{
		Title:           a.Title,
		Category:        a.Category,
		Description:     a.Description,
		Day:             a.Day,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		MaxCapacity:     a.MaxCapacity,
		Instructor:      a.Instructor,
		PhotoURL:        a.PhotoURL,
	}
}

// ActivitySpec is the input for creating an activity and the merged result
// of applying a patch.
type ActivitySpec struct {
	Title           string
	Category        Category
	Description     string
	Day             Day
	StartTime       string
	DurationMinutes int
	MaxCapacity     int
	Instructor      string
	PhotoURL        string
}

// Normalize trims free text and lower-cases enumerations.
func (s *ActivitySpec) Normalize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	s.Instructor = strings.TrimSpace(s.Instructor)
	s.PhotoURL = strings.TrimSpace(s.PhotoURL)
	s.Category = Category(strings.ToLower(strings.TrimSpace(string(s.Category))))
	s.Day = Day(strings.ToLower(strings.TrimSpace(string(s.Day))))
	s.StartTime = strings.TrimSpace(s.StartTime)
	if s.Day == DayOpen && strings.EqualFold(s.StartTime, TimeOpen) {
		s.StartTime = TimeOpen
	}
}

// Validate checks every field and reports all violations at once.
func (s ActivitySpec) Validate() error {
	ve := &ValidationError{}
	if s.Title == "" {
		ve.Add("title", "is required")
	}
	if !s.Category.Valid() {
		ve.Add("category", fmt.Sprintf("must be one of %s", joinCategories()))
	}
	switch {
	case !s.Day.Valid():
		ve.Add("day", "must be a weekday or \"open\"")
	case s.Day == DayOpen:
		if s.StartTime != "" && s.StartTime != TimeOpen && !ValidClock(s.StartTime) {
			ve.Add("start_time", "must be HH:MM, empty or \"open\"")
		}
	default:
		if !ValidClock(s.StartTime) {
			ve.Add("start_time", "must be HH:MM")
		}
	}
	if s.DurationMinutes < MinDurationMinutes || s.DurationMinutes > MaxDurationMinutes {
		ve.Add("duration_minutes", fmt.Sprintf("must be between %d and %d", MinDurationMinutes, MaxDurationMinutes))
	}
	if s.MaxCapacity < MinCapacity || s.MaxCapacity > MaxCapacity {
		ve.Add("max_capacity", fmt.Sprintf("must be between %d and %d", MinCapacity, MaxCapacity))
	}
	if s.Instructor == "" {
		ve.Add("instructor", "is required")
	}
	if s.PhotoURL != "" {
		u, err := url.Parse(s.PhotoURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			ve.Add("photo_url", "must be an http(s) URL")
		}
	}
	return ve.OrNil()
}

// ValidClock reports whether s is a 24h HH:MM time.
func ValidClock(s string) bool {
	if len(s) != 5 {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

func joinCategories() string {
	out := make([]string, len(Categories))
	for i, c := range Categories {
		out[i] = string(c)
	}
	return strings.Join(out, ", ")
}

// ActivityPatch carries a partial update. Nil fields keep their value.
type ActivityPatch struct {
	Title           *string
	Category        *Category
	Description     *string
	Day             *Day
	StartTime       *string
	DurationMinutes *int
	MaxCapacity     *int
	Instructor      *string
	PhotoURL        *string
}

// Apply merges p onto base and returns the normalized result.
func (p ActivityPatch) Apply(base ActivitySpec) ActivitySpec {
	out := base
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Day != nil {
		out.Day = *p.Day
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.DurationMinutes != nil {
		out.DurationMinutes = *p.DurationMinutes
	}
	if p.MaxCapacity != nil {
		out.MaxCapacity = *p.MaxCapacity
	}
	if p.Instructor != nil {
		out.Instructor = *p.Instructor
	}
	if p.PhotoURL != nil {
		out.PhotoURL = *p.PhotoURL
	}
	out.Normalize()
	return out
}

// Sort keys accepted by ActivityFilter.
const (
	SortInsertion = ""
	SortSchedule  = "schedule"
)

// ActivityFilter narrows a catalog listing. Empty fields match everything.
type ActivityFilter struct {
	Search    string
	Category  Category
	Day       Day
	StartTime string
	Sort      string
}

// Matches applies the filter predicates to a single activity.
func (f ActivityFilter) Matches(a Activity) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.Day != "" && a.Day != f.Day {
		return false
	}
	if f.StartTime != "" && a.StartTime != f.StartTime {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(a.Title + "\x00" + a.Description + "\x00" + a.Instructor)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// SortActivities orders list in place according to key. Insertion order is
// ascending id.
func SortActivities(list []Activity, key string) {
	if key == SortSchedule {
		sort.SliceStable(list, func(i, j int) bool {
			di, dj := list[i].Day.Index(), list[j].Day.Index()
			if di != dj {
				return di < dj
			}
			if list[i].StartTime != list[j].StartTime {
				return list[i].StartTime < list[j].StartTime
			}
			return list[i].ID < list[j].ID
		})
		return
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
