package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/service"
)

// ActivityHandler serves the public catalog and its admin mutations.
type ActivityHandler struct {
	Catalog   *service.Catalog
	Generator *service.Generator
	Policy    *service.Policy
}

func NewActivityHandler(catalog *service.Catalog, gen *service.Generator, policy *service.Policy) *ActivityHandler {
	if catalog == nil || gen == nil {
		panic("nil service passed to NewActivityHandler")
	}
	if policy == nil {
		policy = service.NewPolicy()
	}
	return &ActivityHandler{Catalog: catalog, Generator: gen, Policy: policy}
}

// ----- DTOs -----

type activityReq struct {
	Title           string `json:"title"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	Day             string `json:"day"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	MaxCapacity     int    `json:"max_capacity"`
	Instructor      string `json:"instructor"`
	PhotoURL        string `json:"photo_url"`
}

func (r activityReq) spec() model.ActivitySpec {
	return model.ActivitySpec{
		Title:           r.Title,
		Category:        model.Category(r.Category),
		Description:     r.Description,
		Day:             model.Day(r.Day),
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
		MaxCapacity:     r.MaxCapacity,
		Instructor:      r.Instructor,
		PhotoURL:        r.PhotoURL,
	}
}

// patchReq leaves absent fields untouched.
type patchReq struct {
	Title           *string `json:"title"`
	Category        *string `json:"category"`
	Description     *string `json:"description"`
	Day             *string `json:"day"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	MaxCapacity     *int    `json:"max_capacity"`
	Instructor      *string `json:"instructor"`
	PhotoURL        *string `json:"photo_url"`
}

func (r patchReq) patch() model.ActivityPatch {
	p := model.ActivityPatch{
		Title:           r.Title,
		Description:     r.Description,
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
		MaxCapacity:     r.MaxCapacity,
		Instructor:      r.Instructor,
		PhotoURL:        r.PhotoURL,
	}
	if r.Category != nil {
		c := model.Category(*r.Category)
		p.Category = &c
	}
	if r.Day != nil {
		d := model.Day(*r.Day)
		p.Day = &d
	}
	return p
}

type bulkReq struct {
	Template   activityReq `json:"template"`
	Days       []string    `json:"days"`
	StartTime  string      `json:"start_time"`
	RangeStart string      `json:"range_start"`
	RangeEnd   string      `json:"range_end"`
}

type activityResp struct {
	ID              uint64    `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	Day             string    `json:"day"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	MaxCapacity     int       `json:"max_capacity"`
	Enrolled        int       `json:"enrolled"`
	Available       int       `json:"available"`
	Instructor      string    `json:"instructor"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toActivityResp(a model.Activity) activityResp {
	return activityResp{
		ID:              a.ID,
		Title:           a.Title,
		Category:        string(a.Category),
		Description:     a.Description,
		Day:             string(a.Day),
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		MaxCapacity:     a.MaxCapacity,
		Enrolled:        a.Enrolled,
		Available:       a.Available(),
		Instructor:      a.Instructor,
		PhotoURL:        a.PhotoURL,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type bulkFailureResp struct {
	Index     int               `json:"index"`
	Day       string            `json:"day"`
	StartTime string            `json:"start_time"`
	Title     string            `json:"title"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type bulkResp struct {
	BatchID string            `json:"batch_id"`
	Created []activityResp    `json:"created"`
	Failed  []bulkFailureResp `json:"failed"`
}

// ----- public -----

// List handles GET /v1/activities. The start time filter is accepted as
// either start_time or horario.
func (h *ActivityHandler) List(c echo.Context) error {
	start := c.QueryParam("start_time")
	if start == "" {
		start = c.QueryParam("horario")
	}
	f := model.ActivityFilter{
		Search:    strings.TrimSpace(c.QueryParam("search")),
		Category:  model.Category(strings.ToLower(strings.TrimSpace(c.QueryParam("category")))),
		Day:       model.Day(strings.ToLower(strings.TrimSpace(c.QueryParam("day")))),
		StartTime: strings.TrimSpace(start),
		Sort:      strings.ToLower(strings.TrimSpace(c.QueryParam("sort"))),
	}
	if f.Sort != model.SortInsertion && f.Sort != model.SortSchedule {
		return writeError(c, model.NewValidationError("sort", "must be empty or schedule"))
	}
	list, err := h.Catalog.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]activityResp, 0, len(list))
	for _, a := range list {
		out = append(out, toActivityResp(a))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/activities/:id.
func (h *ActivityHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid activity id")
	}
	a, err := h.Catalog.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toActivityResp(*a))
}

// ----- admin -----

func (h *ActivityHandler) authorize(c echo.Context, action service.Action) error {
	return h.Policy.Check(middleware.IdentityFrom(c), action, service.Resource{})
}

// Create handles POST /v1/admin/activities.
func (h *ActivityHandler) Create(c echo.Context) error {
	if err := h.authorize(c, service.ActionActivityCreate); err != nil {
		return writeError(c, err)
	}
	var req activityReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.Catalog.Create(c.Request().Context(), req.spec())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toActivityResp(*a))
}

// Update handles PUT and PATCH /v1/admin/activities/:id. Both merge the
// given fields onto the stored activity.
func (h *ActivityHandler) Update(c echo.Context) error {
	if err := h.authorize(c, service.ActionActivityUpdate); err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid activity id")
	}
	var req patchReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	a, err := h.Catalog.Update(c.Request().Context(), id, req.patch())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toActivityResp(*a))
}

// Delete handles DELETE /v1/admin/activities/:id and reports how many
// enrollments went with it.
func (h *ActivityHandler) Delete(c echo.Context) error {
	if err := h.authorize(c, service.ActionActivityDelete); err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid activity id")
	}
	removed, err := h.Catalog.Delete(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "enrollments_removed": removed})
}

// Bulk handles POST /v1/admin/activities/bulk: 201 when every item was
// created, 207 when some failed.
func (h *ActivityHandler) Bulk(c echo.Context) error {
	var req bulkReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	days := make([]model.Day, len(req.Days))
	for i, d := range req.Days {
		days[i] = model.Day(d)
	}
	res, err := h.Generator.Generate(c.Request().Context(), middleware.IdentityFrom(c), service.BulkRequest{
		Template:   req.Template.spec(),
		Days:       days,
		StartTime:  req.StartTime,
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
	})
	if err != nil {
		return writeError(c, err)
	}

	out := bulkResp{BatchID: res.BatchID, Created: make([]activityResp, 0, len(res.Created)), Failed: make([]bulkFailureResp, 0, len(res.Failed))}
	for _, a := range res.Created {
		out.Created = append(out.Created, toActivityResp(a))
	}
	for _, f := range res.Failed {
		_, code := errorStatus(f.Err)
		fr := bulkFailureResp{Index: f.Index, Day: string(f.Day), StartTime: f.StartTime, Title: f.Title, Error: code}
		var ve *model.ValidationError
		if errors.As(f.Err, &ve) {
			fr.Fields = ve.Fields
		}
		out.Failed = append(out.Failed, fr)
	}
	status := http.StatusCreated
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, out)
}
