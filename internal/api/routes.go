package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/foxseedlab/coachsession/internal/coaching"
	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/foxseedlab/coachsession/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SessionService is the part of coaching.Manager the routes call.
type SessionService interface {
	Start(ctx context.Context, userID, coachID string) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	ListByUser(ctx context.Context, userID string) ([]session.Session, error)
	Stats(ctx context.Context, userID string) (coaching.Stats, error)
	AppendTranscript(ctx context.Context, id string, in coaching.TranscriptInput) (session.Session, error)
	IncrementCredits(ctx context.Context, id string, amount int64) (session.Session, error)
	UpdateAnalytics(ctx context.Context, id string, a session.Analytics) (session.Session, error)
	End(ctx context.Context, id string) (session.Session, error)
	ExportTranscript(ctx context.Context, id string) (string, []byte, error)
}

type startSessionRequest struct {
	UserID  string `json:"user_id"`
	CoachID string `json:"coach_id"`
}

type appendTranscriptRequest struct {
	Speaker   string     `json:"speaker"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp"`
}

type incrementCreditsRequest struct {
	Amount *int64 `json:"amount"`
}

type updateAnalyticsRequest struct {
	TotalTips      *int     `json:"total_tips"`
	SentimentScore *float64 `json:"sentiment_score"`
}

func NewRouter(cfg *config.Config, svc SessionService) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	SetupRoutes(r, svc)
	return r
}

func SetupRoutes(r *gin.Engine, svc SessionService) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	api := r.Group("/api")
	{
		sessions := api.Group("/sessions")
		sessions.GET("", listSessionsHandler(svc))
		sessions.GET("/stats", statsHandler(svc))
		sessions.POST("/start", startSessionHandler(svc))
		sessions.GET("/:id", getSessionHandler(svc))
		sessions.GET("/:id/transcript", exportTranscriptHandler(svc))
		sessions.POST("/:id/end", endSessionHandler(svc))
		sessions.POST("/:id/transcript", appendTranscriptHandler(svc))
		sessions.POST("/:id/credits", incrementCreditsHandler(svc))
		sessions.PUT("/:id/analytics", updateAnalyticsHandler(svc))

		api.GET("/stt/scribe-token", sttDisabledHandler)
	}
}

func listSessionsHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListByUser(c.Request.Context(), c.Query("user_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		if list == nil {
			list = []session.Session{}
		}
		c.JSON(http.StatusOK, list)
	}
}

func statsHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), c.Query("user_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func startSessionHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, badRequest("Invalid request body"))
			return
		}
		s, err := svc.Start(c.Request.Context(), req.UserID, req.CoachID)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, s)
	}
}

func getSessionHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func exportTranscriptHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename, body, err := svc.ExportTranscript(c.Request.Context(), c.Param("id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", body)
	}
}

func endSessionHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.End(c.Request.Context(), c.Param("id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func appendTranscriptHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req appendTranscriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, badRequest("Invalid request body"))
			return
		}
		if req.Speaker == "" || req.Text == "" {
			handleError(c, badRequest("Speaker and text required"))
			return
		}
		in := coaching.TranscriptInput{Speaker: req.Speaker, Text: req.Text}
		if req.Timestamp != nil {
			in.At = req.Timestamp.UTC()
		}
		s, err := svc.AppendTranscript(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "entries": s.TranscriptLen()})
	}
}

func incrementCreditsHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req incrementCreditsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				handleError(c, badRequest("Amount must be an integer"))
				return
			}
			handleError(c, badRequest("Invalid request body"))
			return
		}
		if req.Amount == nil {
			handleError(c, badRequest("Amount required"))
			return
		}
		s, err := svc.IncrementCredits(c.Request.Context(), c.Param("id"), *req.Amount)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"credits_used": s.CreditsUsed()})
	}
}

func updateAnalyticsHandler(svc SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateAnalyticsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.TotalTips == nil {
			handleError(c, badRequest("total_tips required"))
			return
		}
		a := session.Analytics{TotalTips: *req.TotalTips}
		a.SentimentScore = session.FromPtr(req.SentimentScore)
		s, err := svc.UpdateAnalytics(c.Request.Context(), c.Param("id"), a)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.Analytics())
	}
}

// Speech-to-text is switched off; the route stays so clients get a stable answer.
func sttDisabledHandler(c *gin.Context) {
	handleError(c, newAPIError(ErrorTypeServiceUnavailable, "Speech-to-text is disabled", http.StatusServiceUnavailable, nil))
}
