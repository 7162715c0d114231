package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/services"
)

const defaultFoodLimit = 20

// Controller handles the HTTP API. Business logic lives in the services
// package; handlers only bind requests and map errors to status codes.
type Controller struct {
	kb       *services.KnowledgeBase
	sessions *services.SessionManager
	chat     *services.ChatService
	planner  *services.Planner
	topK     int
}

func NewController(kb *services.KnowledgeBase, sessions *services.SessionManager, chat *services.ChatService, planner *services.Planner, topK int) *Controller {
	if topK <= 0 {
		topK = services.DefaultTopK
	}
	return &Controller{kb: kb, sessions: sessions, chat: chat, planner: planner, topK: topK}
}

// Register mounts every route on rg.
func (c *Controller) Register(rg *gin.RouterGroup) {
	rg.GET("/index", c.IndexStatus)
	rg.POST("/index/rebuild", c.RebuildIndex)
	rg.GET("/search", c.Search)
	rg.GET("/foods", c.SearchFoods)

	rg.POST("/sessions", c.CreateSession)
	rg.GET("/sessions/:id", c.GetSession)
	rg.DELETE("/sessions/:id", c.DeleteSession)
	rg.PUT("/sessions/:id/profile", c.UpdateProfile)
	rg.POST("/sessions/:id/chat", c.Chat)
	rg.DELETE("/sessions/:id/chat", c.ClearChat)

	rg.POST("/sessions/:id/plan/import", c.ImportPlan)
	rg.GET("/sessions/:id/plan", c.GetPlan)
	rg.GET("/sessions/:id/plan/totals", c.WeeklyAverage)
	rg.GET("/sessions/:id/plan/days/:day/totals", c.DailyTotals)
	rg.DELETE("/sessions/:id/plan/days/:day", c.ClearDay)
	rg.POST("/sessions/:id/plan/days/:day/slots/:slot/items", c.AddItem)
	rg.PUT("/sessions/:id/plan/days/:day/slots/:slot/items", c.UpdateSlot)
	rg.DELETE("/sessions/:id/plan/days/:day/slots/:slot/items/:index", c.RemoveItem)
}

var errNoRecommendation = errors.New("no recommendation to import: ask the assistant first or send text")

// respondError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func respondError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrFoodNotFound),
		errors.Is(err, ledger.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrUnknownDay),
		errors.Is(err, ledger.ErrUnknownSlot),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, errNoRecommendation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNoStructuredPlan):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", ctx.FullPath()).Msg("request failed")
		ctx.JSON(status, gin.H{"error": "Internal error, see server logs"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

// IndexStatus is the handler for GET /api/v1/index.
func (c *Controller) IndexStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.kb.Report())
}

// RebuildIndex is the handler for POST /api/v1/index/rebuild. It re-embeds
// the whole library and answers when the build is over. A request made
// while another build runs gets 409.
func (c *Controller) RebuildIndex(ctx *gin.Context) {
	report, err := c.kb.Rebuild(ctx.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrBuildInProgress) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "Index build already in progress"})
			return
		}
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// Search is the handler for GET /api/v1/search?q=&k=.
func (c *Controller) Search(ctx *gin.Context) {
	q := ctx.Query("q")
	if q == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}
	k := c.topK
	if raw := ctx.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'k' must be a positive integer"})
			return
		}
		k = n
	}
	passages, err := c.kb.Retrieve(ctx.Request.Context(), q, k)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if passages == nil {
		passages = []models.RetrievedPassage{}
	}
	ctx.JSON(http.StatusOK, models.SearchResponse{Query: q, Passages: passages})
}

// SearchFoods is the handler for GET /api/v1/foods?q=&limit=.
func (c *Controller) SearchFoods(ctx *gin.Context) {
	limit := defaultFoodLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'limit' must be a positive integer"})
			return
		}
		limit = n
	}
	recs := c.planner.Matcher().Table().Search(ctx.Query("q"), limit)
	options := make([]models.FoodOption, len(recs))
	for i, r := range recs {
		options[i] = models.FoodOption{Name: r.CanonicalName, Label: services.FoodLabel(r), Per100g: r.Per100g}
	}
	ctx.JSON(http.StatusOK, options)
}

func sessionView(s *services.Session) models.SessionResponse {
	history := make([]models.Message, len(s.History))
	copy(history, s.History)
	return models.SessionResponse{
		ID:             s.ID,
		Profile:        s.Profile,
		History:        history,
		Recommendation: s.Recommendation,
		PlannedItems:   s.Plan.Len(),
	}
}

// CreateSession is the handler for POST /api/v1/sessions.
func (c *Controller) CreateSession(ctx *gin.Context) {
	s := c.sessions.Create(ctx.Request.Context())
	var view models.SessionResponse
	_ = s.Do(func(s *services.Session) error {
		view = sessionView(s)
		return nil
	})
	ctx.JSON(http.StatusCreated, view)
}

// GetSession is the handler for GET /api/v1/sessions/:id.
func (c *Controller) GetSession(ctx *gin.Context) {
	var view models.SessionResponse
	err := c.sessions.View(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		view = sessionView(s)
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// DeleteSession is the handler for DELETE /api/v1/sessions/:id.
func (c *Controller) DeleteSession(ctx *gin.Context) {
	if err := c.sessions.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// UpdateProfile is the handler for PUT /api/v1/sessions/:id/profile.
func (c *Controller) UpdateProfile(ctx *gin.Context) {
	var profile models.PatientProfile
	if err := ctx.ShouldBindJSON(&profile); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	var view models.SessionResponse
	err := c.sessions.Update(ctx.Request.Context(), ctx.Param("id"), func(s *services.Session) error {
		s.Profile = profile
		view = sessionView(s)
		return nil
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// Chat is the handler for POST /api/v1/sessions/:id/chat.
func (c *Controller) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	reply, err := c.chat.Ask(ctx.Request.Context(), ctx.Param("id"), req.Message)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) || errors.Is(err, services.ErrEmptyMessage) {
			respondError(ctx, err)
			return
		}
		log.Error().Err(err).Str("session_id", ctx.Param("id")).Msg("chat turn failed")
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate AI response"})
		return
	}
	ctx.JSON(http.StatusOK, reply)
}

// ClearChat is the handler for DELETE /api/v1/sessions/:id/chat.
func (c *Controller) ClearChat(ctx *gin.Context) {
	if err := c.chat.ClearChat(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Chat cleared"})
}
