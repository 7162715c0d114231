package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/services"
)

func pathDay(ctx *gin.Context) (models.Day, error) {
	d, ok := models.ParseDay(ctx.Param("day"))
	if !ok {
		return "", fmt.Errorf("%w: %q", ledger.ErrUnknownDay, ctx.Param("day"))
	}
	return d, nil
}

func pathSlot(ctx *gin.Context) (models.Slot, error) {
	s, ok := models.ParseSlot(ctx.Param("slot"))
	if !ok {
		return "", fmt.Errorf("%w: %q", ledger.ErrUnknownSlot, ctx.Param("slot"))
	}
	return s, nil
}

// presented rounds an item's contribution for display. The per-100g
// snapshot is kept exact so it can be sent back in an edit.
func presented(it models.PlannedFoodItem) models.PlannedFoodItem {
	it.Contribution = it.Contribution.Rounded()
	return it
}

func presentedAll(items []models.PlannedFoodItem) []models.PlannedFoodItem {
	out := make([]models.PlannedFoodItem, len(items))
	for i, it := range items {
		out[i] = presented(it)
	}
	return out
}

func planView(p *ledger.WeeklyPlan) models.PlanResponse {
	resp := models.PlanResponse{Days: make([]models.DayView, 0, len(models.Days))}
	for _, d := range models.Days {
		day := models.DayView{Day: d, Totals: p.DailyTotals(d).Rounded()}
		for _, s := range models.Slots {
			day.Slots = append(day.Slots, models.SlotView{Slot: s, Items: presentedAll(p.Items(d, s))})
		}
		resp.Days = append(resp.Days, day)
	}
	resp.WeeklyAverage = p.WeeklyAverage().Rounded()
	return resp
}

// ImportPlan is the handler for POST /api/v1/sessions/:id/plan/import. It
// reconciles the given text, or the session's last recommendation, into
// the weekly plan.
func (c *Controller) ImportPlan(ctx *gin.Context) {
	var req models.ImportPlanRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
	}

	var report services.ImportReport
	err := c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		text := strings.TrimSpace(req.Text)
		if text == "" {
			text = s.Recommendation
		}
		if strings.TrimSpace(text) == "" {
			return errNoRecommendation
		}
		var err error
		report, err = c.planner.Import(ctx.Request.Context(), s.Plan, text)
		return err
	})
	if err != nil {
		if errors.Is(err, services.ErrNoStructuredPlan) {
			ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The response could not be read as a diet plan", "report": report})
			return
		}
		if errors.Is(err, services.ErrExtractionUnavailable) {
			log.Error().Err(err).Str("session_id", ctx.Param("id")).Msg("diet extraction failed")
			ctx.JSON(http.StatusBadGateway, gin.H{"error": "The extraction service is unavailable", "report": report})
			return
		}
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// GetPlan is the handler for GET /api/v1/sessions/:id/plan.
func (c *Controller) GetPlan(ctx *gin.Context) {
	var resp models.PlanResponse
	err := c.sessions.View(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		resp = planView(s.Plan)
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// WeeklyAverage is the handler for GET /api/v1/sessions/:id/plan/totals.
func (c *Controller) WeeklyAverage(ctx *gin.Context) {
	var resp models.TotalsResponse
	err := c.sessions.View(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		resp.Totals = s.Plan.WeeklyAverage().Rounded()
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// DailyTotals is the handler for GET /api/v1/sessions/:id/plan/days/:day/totals.
func (c *Controller) DailyTotals(ctx *gin.Context) {
	day, err := pathDay(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	resp := models.TotalsResponse{Day: day}
	err = c.sessions.View(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		resp.Totals = s.Plan.DailyTotals(day).Rounded()
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ClearDay is the handler for DELETE /api/v1/sessions/:id/plan/days/:day.
func (c *Controller) ClearDay(ctx *gin.Context) {
	day, err := pathDay(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	err = c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		return s.Plan.ClearDay(day)
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Day cleared", "day": day})
}

// AddItem is the handler for POST /api/v1/sessions/:id/plan/days/:day/slots/:slot/items.
func (c *Controller) AddItem(ctx *gin.Context) {
	day, err := pathDay(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	slot, err := pathSlot(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	var req models.AddFoodRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	var item models.PlannedFoodItem
	err = c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		var err error
		item, err = c.planner.AddFood(s.Plan, day, slot, req.Food, req.Grams)
		return err
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, presented(item))
}

// UpdateSlot is the handler for PUT /api/v1/sessions/:id/plan/days/:day/slots/:slot/items.
// The body replaces the slot; rows with an invalid quantity are dropped.
func (c *Controller) UpdateSlot(ctx *gin.Context) {
	day, err := pathDay(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	slot, err := pathSlot(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	var req models.UpdateSlotRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	edits := make([]ledger.Edit, len(req.Items))
	for i, e := range req.Items {
		edits[i] = ledger.Edit{Item: e.Item, Grams: e.Grams}
	}

	var resp models.UpdateSlotResponse
	err = c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		dropped, err := s.Plan.Update(day, slot, edits)
		if err != nil {
			return err
		}
		resp = models.UpdateSlotResponse{Items: presentedAll(s.Plan.Items(day, slot)), Dropped: dropped}
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// RemoveItem is the handler for DELETE /api/v1/sessions/:id/plan/days/:day/slots/:slot/items/:index.
func (c *Controller) RemoveItem(ctx *gin.Context) {
	day, err := pathDay(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	slot, err := pathSlot(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Item index must be an integer"})
		return
	}

	var items []models.PlannedFoodItem
	err = c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		if err := s.Plan.Remove(day, slot, index); err != nil {
			return err
		}
		items = presentedAll(s.Plan.Items(day, slot))
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}
