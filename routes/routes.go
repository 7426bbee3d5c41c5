package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"eventapi/middlewares"
	"eventapi/models"
	"eventapi/services"
	"eventapi/utils"
)

// SocketServer upgrades an authenticated request to the push channel.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, profileID, role string)
}

// Deps is everything the handlers need. Redis may be nil, which turns the
// response cache and the daily quota off.
type Deps struct {
	Tokens *utils.TokenIssuer
	Redis  *redis.Client
	Events models.EventRepository

	Auth          *services.AuthService
	EventSvc      *services.EventService
	Participants  *services.ParticipantService
	Proposals     *services.ProposalService
	Notifications *services.Notifier
	Audit         *services.Auditor
	Feedback      *services.FeedbackService
	Sockets       SocketServer

	// Health reports dependency status for /health; nil means always up.
	Health func(ctx context.Context) map[string]error

	CacheTTL   time.Duration
	DailyQuota int
	Limits     *Limits
}

// Limits are the token buckets applied in front of the handlers.
type Limits struct {
	Global      middlewares.LimiterConfig // every request, per IP
	Auth        middlewares.LimiterConfig // signup and login, per IP
	PublicWrite middlewares.LimiterConfig // registration and feedback, per IP
	User        middlewares.LimiterConfig // authenticated requests, per user
}

func DefaultLimits() *Limits {
	return &Limits{
		Global:      middlewares.LimiterConfig{RPS: 20, Burst: 40, IdleTTL: 3 * time.Minute},
		Auth:        middlewares.LimiterConfig{RPS: 0.5, Burst: 2, IdleTTL: 10 * time.Minute},
		PublicWrite: middlewares.LimiterConfig{RPS: 1, Burst: 5, IdleTTL: 10 * time.Minute},
		User:        middlewares.LimiterConfig{RPS: 5, Burst: 10, IdleTTL: 10 * time.Minute},
	}
}

var staff = []string{models.RoleAdmin, models.RoleOfficer, models.RoleOrganizer, models.RoleLGU}

func RegisterRoutes(server *gin.Engine, d *Deps) {
	if d.CacheTTL == 0 {
		d.CacheTTL = 30 * time.Second
	}
	if d.DailyQuota == 0 {
		d.DailyQuota = 2000
	}
	if d.Limits == nil {
		d.Limits = DefaultLimits()
	}

	// ===== global per-IP limit =====
	globalLimiter := middlewares.NewRateLimiter(d.Limits.Global)
	server.Use(globalLimiter.Middleware(middlewares.ByIP("ip")))

	// ===== stricter limits on public writes =====
	authLimiter := middlewares.NewRateLimiter(d.Limits.Auth)
	publicWriteLimiter := middlewares.NewRateLimiter(d.Limits.PublicWrite)

	server.GET("/health", d.health)
	server.GET("/ws", d.serveWS)

	api := server.Group("/api/v1")

	api.POST("/auth/signup", authLimiter.Middleware(middlewares.ByIP("signup")), d.signup)
	api.POST("/auth/login", authLimiter.Middleware(middlewares.ByIP("login")), d.login)

	// ===== public =====
	cached := []gin.HandlerFunc{}
	if d.Redis != nil {
		cached = append(cached, middlewares.ResponseCache(d.Redis, d.CacheTTL))
	}
	api.GET("/Event", append(cached, d.getEvents)...)
	api.GET("/Event/:id", append(cached, d.getEvent)...)
	api.POST("/Participant",
		publicWriteLimiter.Middleware(middlewares.ByIP("register")),
		middlewares.CapacityGate(d.Events),
		d.createParticipant,
	)
	api.POST("/Feedback", publicWriteLimiter.Middleware(middlewares.ByIP("feedback")), d.submitFeedback)

	// ===== authenticated: per-user limit + daily quota =====
	auth := api.Group("/")
	auth.Use(middlewares.Authenticate(d.Tokens))

	userLimiter := middlewares.NewRateLimiter(d.Limits.User)
	auth.Use(userLimiter.Middleware(middlewares.ByUser("u")))
	if d.Redis != nil {
		auth.Use(middlewares.Quota(d.Redis, middlewares.QuotaRule{
			Limit:  d.DailyQuota,
			Window: 24 * time.Hour,
			KeyFn:  middlewares.UserDailyKey,
		}))
	}

	admin := middlewares.RequireRole(models.RoleAdmin)
	reviewers := middlewares.RequireRole(models.RoleAdmin, models.RoleOfficer)
	organizers := middlewares.RequireRole(models.RoleAdmin, models.RoleOrganizer)

	auth.POST("/auth/users", admin, d.createUser)

	auth.POST("/Event", organizers, d.createEvent)
	auth.PUT("/Event/:id", organizers, d.updateEvent)
	auth.DELETE("/Event/:id", organizers, d.deleteEvent)
	auth.POST("/Event/:id/image", organizers, d.uploadEventImage)
	auth.GET("/Event/:id/feedback", middlewares.RequireRole(staff...), d.eventFeedback)

	auth.GET("/Participant", middlewares.RequireRole(staff...), d.getParticipants)
	auth.GET("/Participant/archived", middlewares.RequireRole(staff...), d.getArchivedParticipants)
	auth.GET("/Participant/:id", middlewares.RequireRole(staff...), d.getParticipant)
	auth.PATCH("/Participant/:id/status", reviewers, d.updateParticipantStatus)
	auth.PATCH("/Participant/:id/attendance", reviewers, d.updateAttendance)
	auth.PATCH("/Participant/:id/archive", reviewers, d.updateArchive)
	auth.POST("/Participant/:id/pass", reviewers, d.retryPass)
	auth.DELETE("/Participant/:id", admin, d.deleteParticipant)

	auth.POST("/Proposal", middlewares.RequireRole(models.RoleOrganizer), d.createProposal)
	auth.GET("/Proposal", middlewares.RequireRole(models.RoleAdmin, models.RoleOrganizer, models.RoleLGU), d.getProposals)
	auth.PATCH("/Proposal/:id/decision", admin, d.decideProposal)

	auth.GET("/Notification", d.getNotifications)
	auth.PATCH("/Notification/:id/read", d.markNotificationRead)
	auth.POST("/Notification", admin, d.sendNotification)
	auth.DELETE("/Notification/:id", admin, d.deleteNotification)

	auth.GET("/Audit", admin, d.getAuditLogs)
}
