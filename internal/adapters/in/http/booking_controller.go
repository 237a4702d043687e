package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/in"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

type BookingController struct {
	useCase in.BookingUseCase
	cfg     *config.Config
	logger  out.LoggerPort
}

func NewBookingController(useCase in.BookingUseCase, cfg *config.Config, logger out.LoggerPort) *BookingController {
	return &BookingController{
		useCase: useCase,
		cfg:     cfg,
		logger:  logger.WithModule("HttpController"),
	}
}

func (c *BookingController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.health)

	api := router.Group("/api/v1")
	api.Use(c.basicAuth())
	{
		api.GET("/speakers", c.searchSpeakers)
		api.GET("/speakers/:speakerId/assignments", c.listAssignments)
		api.GET("/specialties", c.specialties)

		api.POST("/sessions", c.openSession)
		api.DELETE("/sessions/:sessionId", c.closeSession)
		api.GET("/sessions/:sessionId", c.snapshot)
		api.POST("/sessions/:sessionId/speaker", c.selectSpeaker)
		api.PUT("/sessions/:sessionId/date", c.selectDate)
		api.POST("/sessions/:sessionId/assignments", c.commit)
		api.GET("/sessions/:sessionId/calendar", c.calendar)
		api.POST("/sessions/:sessionId/calendar/refresh", c.refreshCalendar)
		api.GET("/sessions/:sessionId/notifications", c.notifications)
	}
}

type SelectSpeakerRequest struct {
	SpeakerID   string `json:"speakerId" binding:"required"`
	SpeakerName string `json:"speakerName"`
}

type SelectDateRequest struct {
	Date domain.SessionDate `json:"date"`
}

type SessionStateResponse struct {
	SessionID uuid.UUID                   `json:"sessionId"`
	Phase     domain.WorkflowPhase        `json:"phase"`
	CanCommit bool                        `json:"canCommit"`
	State     domain.BookingWorkflowState `json:"state"`
}

func newSessionStateResponse(sessionID uuid.UUID, state domain.BookingWorkflowState) SessionStateResponse {
	return SessionStateResponse{
		SessionID: sessionID,
		Phase:     state.Phase(),
		CanCommit: state.CanCommit(),
		State:     state,
	}
}

func (c *BookingController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": c.cfg.App.Version,
	})
}

func (c *BookingController) searchSpeakers(ctx *gin.Context) {
	filter := domain.SpeakerFilter{
		Name:      ctx.Query("name"),
		Specialty: domain.Specialty(ctx.Query("specialty")),
	}

	speakers, err := c.useCase.SearchSpeakers(ctx.Request.Context(), filter)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"speakers": speakers})
}

func (c *BookingController) listAssignments(ctx *gin.Context) {
	assignments, err := c.useCase.ListAssignments(ctx.Request.Context(), ctx.Param("speakerId"))
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

func (c *BookingController) specialties(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"specialties": domain.SpecialtyOptions})
}

func (c *BookingController) openSession(ctx *gin.Context) {
	sessionID, err := c.useCase.OpenSession(ctx.Request.Context())
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"sessionId": sessionID})
}

func (c *BookingController) closeSession(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	if err := c.useCase.CloseSession(ctx.Request.Context(), sessionID); err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *BookingController) snapshot(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	state, err := c.useCase.Snapshot(ctx.Request.Context(), sessionID)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, newSessionStateResponse(sessionID, state))
}

func (c *BookingController) selectSpeaker(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	var req SelectSpeakerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := c.useCase.PublishSpeakerSelection(ctx.Request.Context(), sessionID, domain.SpeakerSelection{
		SpeakerID:   req.SpeakerID,
		SpeakerName: req.SpeakerName,
	})
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	// Выбор обрабатывается асинхронно, результат виден в снимке состояния
	ctx.JSON(http.StatusAccepted, gin.H{
		"sessionId": sessionID,
		"speakerId": req.SpeakerID,
	})
}

func (c *BookingController) selectDate(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	var req SelectDateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, expected YYYY-MM-DD"})
		return
	}

	outcome, state, err := c.useCase.SelectDate(ctx.Request.Context(), sessionID, req.Date)
	if errors.Is(err, domain.ErrSessionNotFound) {
		c.abortWithError(ctx, err)
		return
	}

	body := gin.H{
		"outcome": outcome.Kind,
		"session": newSessionStateResponse(sessionID, state),
	}
	if err != nil {
		body["error"] = err.Error()
	}

	ctx.JSON(statusFor(err), body)
}

func (c *BookingController) commit(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	assignment, err := c.useCase.Commit(ctx.Request.Context(), sessionID)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, assignment)
}

func (c *BookingController) calendar(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	days, err := c.useCase.Calendar(ctx.Request.Context(), sessionID)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"days": days})
}

func (c *BookingController) refreshCalendar(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	days, err := c.useCase.RefreshCalendar(ctx.Request.Context(), sessionID)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"days": days})
}

func (c *BookingController) notifications(ctx *gin.Context) {
	sessionID, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	notifications, err := c.useCase.DrainNotifications(ctx.Request.Context(), sessionID)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (c *BookingController) sessionID(ctx *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(ctx.Param("sessionId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID format"})
		return uuid.Nil, false
	}
	return sessionID, true
}

func (c *BookingController) abortWithError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error("http.request.failed", out.LogFields{
			"method": ctx.Request.Method,
			"path":   ctx.FullPath(),
			"status": status,
			"error":  err.Error(),
		})
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSpeakerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPastDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCommitNotPermitted),
		errors.Is(err, domain.ErrConflictOnCommit),
		errors.Is(err, domain.ErrOperationInFlight),
		errors.Is(err, domain.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c *BookingController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth || !c.validClient(username, password) {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx.Next()
	}
}

func (c *BookingController) validClient(username, password string) bool {
	valid := false
	for _, client := range c.cfg.Auth.BasicClients {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1
		if userOK && passOK {
			valid = true
		}
	}
	return valid
}
