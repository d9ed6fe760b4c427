package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"

	_ "github.com/aussiebroadwan/mediscan/api/mediscan" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// MaxBodyBytes bounds JSON request bodies. Image data URLs are large.
const MaxBodyBytes = 50 << 20

// RateLimits holds one bucket profile per endpoint class.
type RateLimits struct {
	Strict   httpx.RateLimitConfig
	Login    httpx.RateLimitConfig
	Moderate httpx.RateLimitConfig
	Lenient  httpx.RateLimitConfig
	Public   httpx.RateLimitConfig
}

// RateLimitsFromEnv starts from the httpx profiles and applies any
// RATELIMIT_<PROFILE>_* overrides.
func RateLimitsFromEnv() RateLimits {
	return RateLimits{
		Strict:   httpx.ParseRateLimitFromEnv("STRICT", httpx.StrictLimit),
		Login:    httpx.ParseRateLimitFromEnv("LOGIN", httpx.LoginLimit),
		Moderate: httpx.ParseRateLimitFromEnv("MODERATE", httpx.ModerateLimit),
		Lenient:  httpx.ParseRateLimitFromEnv("LENIENT", httpx.LenientLimit),
		Public:   httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit),
	}
}

type Config struct {
	Cookie       httpx.RefreshCookie
	CORS         httpx.CORSConfig
	ErrorDetail  bool
	HSTS         bool
	BuildVersion string
	Limits       RateLimits
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg       Config
	startTime time.Time
	logger    *slog.Logger
	store     store.Store

	TokenService     *service.TokenService
	AccountService   *service.AccountService
	ProfileService   *service.ProfileService
	UserService      *service.UserService
	ChatService      *service.ChatService
	HealthService    *service.HealthService
	AnalyzeService   *service.AnalyzeService
	AvatarService    *service.AvatarService
	BootstrapService *service.BootstrapService
}

func NewRouter(cfg Config, st store.Store, logger *slog.Logger) *Router {
	if cfg.Limits == (RateLimits{}) {
		cfg.Limits = RateLimitsFromEnv()
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
		store:     st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.SecureHeaders(cfg.HSTS),
		httpx.CORS(cfg.CORS),
		httpx.ErrorDetail(cfg.ErrorDetail),
		httpx.BodyLimit(MaxBodyBytes),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerChats()
	r.registerHealth()
	r.registerAnalyze()
	r.registerBootstrap()
	r.registerSystem()

	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			MediScan API
//	@version		1.0.0
//	@description	Backend for the MediScan health companion: accounts, health records, assistant chats and medicine image analysis.
//	@description
//	@description				Every response uses the {statusCode, message, data, errors, success} envelope.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/mediscan
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:5000
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}". A renewed token may come back in the Authorization response header.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// protect authenticates with the access token, falling back to the
// refresh cookie.
func (r *Router) protect() httpx.Middleware {
	return httpx.Protect(r.TokenService, sessionResolver{accounts: r.AccountService}, r.cfg.Cookie)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AccountService: r.AccountService,
		ProfileService: r.ProfileService,
		Cookie:         r.cfg.Cookie,
	}
	limits := r.cfg.Limits

	r.Mux.Handle("POST /api/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(limits.Strict),
		),
	)

	// Keyed by IP + email so one address cannot be brute forced from a
	// single client, while shared NATs do not lock each other out.
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(limits.Login, "email"),
		),
	)
	r.Mux.Handle("POST /api/auth/external",
		httpx.Chain(http.HandlerFunc(h.HandleExternal),
			httpx.RateLimitByIP(limits.Strict),
		),
	)

	r.Mux.Handle("POST /api/auth/refresh-token",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(limits.Moderate),
		),
	)
	r.Mux.Handle("POST /api/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(limits.Moderate),
		),
	)

	r.Mux.Handle("GET /api/auth/profile",
		httpx.Chain(http.HandlerFunc(h.HandleGetProfile),
			r.protect(),
			httpx.RateLimitByUser(limits.Lenient),
		),
	)
	r.Mux.Handle("PUT /api/auth/profile",
		httpx.Chain(http.HandlerFunc(h.HandleUpdateProfile),
			r.protect(),
			httpx.RateLimitByUser(limits.Moderate),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		UserService:    r.UserService,
		ProfileService: r.ProfileService,
		AvatarService:  r.AvatarService,
	}
	limits := r.cfg.Limits

	r.Mux.Handle("PUT /api/users/profile/avatar",
		httpx.Chain(http.HandlerFunc(h.HandleUploadAvatar),
			r.protect(),
			httpx.RateLimitByUser(limits.Moderate),
		),
	)
	r.Mux.Handle("PUT /api/users/profile/preferences",
		httpx.Chain(http.HandlerFunc(h.HandleUpdatePreferences),
			r.protect(),
			httpx.RateLimitByUser(limits.Moderate),
		),
	)

	// Admin directory
	r.Mux.Handle("GET /api/users",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.protect(),
			httpx.RequireRole(httpx.RoleAdmin),
			httpx.RateLimitByUser(limits.Lenient),
		),
	)
	r.Mux.Handle("GET /api/users/{userId}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			r.protect(),
			httpx.RequireOwner("userId"),
			httpx.RateLimitByUser(limits.Lenient),
		),
	)
	r.Mux.Handle("PATCH /api/users/{userId}/role",
		httpx.Chain(http.HandlerFunc(h.HandleSetRole),
			r.protect(),
			httpx.RequireRole(httpx.RoleAdmin),
			httpx.RateLimitByUser(limits.Moderate),
		),
	)
	r.Mux.Handle("PATCH /api/users/{userId}/status",
		httpx.Chain(http.HandlerFunc(h.HandleSetStatus),
			r.protect(),
			httpx.RequireRole(httpx.RoleAdmin),
			httpx.RateLimitByUser(limits.Moderate),
		),
	)
}

func (r *Router) registerChats() {
	h := &ChatsHandler{ChatService: r.ChatService}
	limits := r.cfg.Limits

	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, r.protect(), httpx.RateLimitByUser(limits.Lenient))
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, r.protect(), httpx.RateLimitByUser(limits.Moderate))
	}

	r.Mux.Handle("GET /api/chats", read(h.HandleList))
	r.Mux.Handle("POST /api/chats", write(h.HandleCreate))
	r.Mux.Handle("GET /api/chats/{chatId}", read(h.HandleGet))
	r.Mux.Handle("DELETE /api/chats/{chatId}", write(h.HandleDelete))
	r.Mux.Handle("POST /api/chats/{chatId}/messages", write(h.HandleSend))
}

func (r *Router) registerHealth() {
	h := &HealthHandler{HealthService: r.HealthService}
	limits := r.cfg.Limits

	// Every health route is scoped to {userId}: the owner or an admin.
	owned := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			r.protect(),
			httpx.RequireOwner("userId"),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("POST /api/health/records/{userId}", owned(h.HandleAdd, limits.Moderate))
	r.Mux.Handle("GET /api/health/{kind}/{userId}", owned(h.HandleList, limits.Lenient))
	r.Mux.Handle("PUT /api/health/{kind}/{userId}/{entryId}", owned(h.HandleUpdate, limits.Moderate))
	r.Mux.Handle("DELETE /api/health/{kind}/{userId}/{entryId}", owned(h.HandleDelete, limits.Moderate))
	r.Mux.Handle("PATCH /api/health/medications/{userId}/{entryId}/refill", owned(h.HandleRefill, limits.Moderate))
}

func (r *Router) registerAnalyze() {
	h := &AnalyzeHandler{AnalyzeService: r.AnalyzeService}

	// Each call costs an upstream model request.
	r.Mux.Handle("POST /api/analyze",
		httpx.Chain(h,
			r.protect(),
			httpx.RateLimitByUser(r.cfg.Limits.Moderate),
		),
	)
}

func (r *Router) registerBootstrap() {
	h := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /api/bootstrap",
		httpx.Chain(h,
			httpx.RateLimitByIP(r.cfg.Limits.Strict),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /health",
		httpx.Chain(HealthzHandler(r.startTime, r.cfg.BuildVersion),
			httpx.RateLimitByIP(r.cfg.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.cfg.BuildVersion, r.store),
			httpx.RateLimitByIP(r.cfg.Limits.Public),
		),
	)
}
