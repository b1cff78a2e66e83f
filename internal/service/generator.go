package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/gym-roster/internal/model"
)

// BulkRequest describes a recurring schedule. Exactly one of StartTime
// (single mode) or RangeStart/RangeEnd (range mode over model.TimeSlots)
// must be given. Template.Day and Template.StartTime are ignored.
type BulkRequest struct {
	Template   model.ActivitySpec
	Days       []model.Day
	StartTime  string
	RangeStart string
	RangeEnd   string
}

func (r BulkRequest) rangeMode() bool { return r.RangeStart != "" || r.RangeEnd != "" }

// BulkFailure is one expanded item that could not be created.
type BulkFailure struct {
	Index     int
	Day       model.Day
	StartTime string
	Title     string
	Err       error
}

// BatchResult lists what a bulk generation created and what it did not.
// Items are independent: a failure never undoes a success.
type BatchResult struct {
	BatchID string
	Created []model.Activity
	Failed  []BulkFailure
}

// Expand turns a bulk request into one spec per (day, slot). Duplicate days
// collapse to their first occurrence.
func Expand(req BulkRequest) ([]model.ActivitySpec, error) {
	ve := &model.ValidationError{}
	days := make([]model.Day, 0, len(req.Days))
	seen := map[model.Day]bool{}
	for _, d := range req.Days {
		d = model.Day(strings.ToLower(strings.TrimSpace(string(d))))
		if !d.Weekday() {
			ve.Add("days", fmt.Sprintf("unknown day %q", d))
			continue
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(req.Days) == 0 {
		ve.Add("days", "at least one day is required")
	}

	var slots []string
	rangeStart := strings.TrimSpace(req.RangeStart)
	rangeEnd := strings.TrimSpace(req.RangeEnd)
	if req.rangeMode() {
		if strings.TrimSpace(req.StartTime) != "" {
			ve.Add("start_time", "must be omitted when range_start and range_end are given")
		}
		from, to := model.SlotIndex(rangeStart), model.SlotIndex(rangeEnd)
		if from < 0 {
			ve.Add("range_start", "must be one of the hourly slots 06:00 to 22:00")
		}
		if to < 0 {
			ve.Add("range_end", "must be one of the hourly slots 06:00 to 22:00")
		}
		if from >= 0 && to >= 0 {
			if to < from {
				ve.Add("range_end", "must not precede range_start")
			} else {
				slots = model.TimeSlots()[from : to+1]
			}
		}
	} else {
		start := strings.TrimSpace(req.StartTime)
		if !model.ValidClock(start) {
			ve.Add("start_time", "must be HH:MM when no range is given")
		}
		slots = []string{start}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	out := make([]model.ActivitySpec, 0, len(days)*len(slots))
	for _, d := range days {
		for _, slot := range slots {
			spec := req.Template
			spec.Day = d
			spec.StartTime = slot
			if req.rangeMode() {
				spec.Title = fmt.Sprintf("%s - %s", strings.TrimSpace(req.Template.Title), slot)
				spec.Description = annotateRange(req.Template.Description, rangeStart, rangeEnd)
			}
			out = append(out, spec)
		}
	}
	return out, nil
}

func annotateRange(desc, from, to string) string {
	note := fmt.Sprintf("available from %s to %s", from, to)
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return strings.ToUpper(note[:1]) + note[1:]
	}
	return fmt.Sprintf("%s (%s)", desc, note)
}

// Generator creates the activities of a bulk request through the Catalog.
type Generator struct {
	catalog *Catalog
	policy  *Policy
	limit   int
	log     *slog.Logger
}

// NewGenerator runs at most concurrency creations at a time.
func NewGenerator(catalog *Catalog, policy *Policy, concurrency int, log *slog.Logger) *Generator {
	if catalog == nil {
		panic("nil catalog passed to NewGenerator")
	}
	if policy == nil {
		policy = NewPolicy()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{catalog: catalog, policy: policy, limit: concurrency, log: log}
}

// Generate expands req and creates every item independently. The returned
// error is non-nil only for request-level problems: authorization or a
// request that does not expand. Per-item failures are in the result.
func (g *Generator) Generate(ctx context.Context, id model.Identity, req BulkRequest) (*BatchResult, error) {
	if err := g.policy.Check(id, ActionScheduleGenerate, Resource{}); err != nil {
		return nil, err
	}
	specs, err := Expand(req)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	created := make([]*model.Activity, len(specs))
	failed := make([]error, len(specs))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.limit)
	for i, spec := range specs {
		grp.Go(func() error {
			a, err := g.catalog.create(gctx, spec, batchID)
			created[i], failed[i] = a, err
			return nil
		})
	}
	_ = grp.Wait()

	res := &BatchResult{BatchID: batchID, Created: []model.Activity{}, Failed: []BulkFailure{}}
	for i, spec := range specs {
		if failed[i] != nil {
			bulkItems.WithLabelValues("failed").Inc()
			res.Failed = append(res.Failed, BulkFailure{
				Index:     i,
				Day:       spec.Day,
				StartTime: spec.StartTime,
				Title:     spec.Title,
				Err:       failed[i],
			})
			continue
		}
		bulkItems.WithLabelValues("created").Inc()
		res.Created = append(res.Created, *created[i])
	}
	g.log.Info("schedule_generated",
		"batch_id", batchID,
		"requested", len(specs),
		"created", len(res.Created),
		"failed", len(res.Failed),
	)
	return res, nil
}
