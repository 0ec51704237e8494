package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/cache"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/config"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/crypto"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/handler"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/insights"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/markdown"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/secret"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/session"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/spotify"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/token"
)

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler     *handler.AuthHandler
	searchHandler   *handler.SearchHandler
	insightsHandler *handler.InsightsHandler
	caches          *handler.Caches
	originSecret    string
	devMode         bool
	frontendURL     string
	logger          *zap.Logger
}

// Deps are the collaborators NewApp builds from configuration. Tests pass
// them in directly through New.
type Deps struct {
	Tokens       *token.Manager
	Upstream     handler.Upstream
	Narrator     handler.Narrator
	Caches       *handler.Caches
	JWTSecret    string
	OriginSecret string
}

// New assembles the router from ready-made dependencies.
func New(cfg *config.Config, deps Deps, l *zap.Logger) *App {
	l = logger.OrNop(l)
	if deps.Caches == nil {
		deps.Caches = handler.NewCachesWithTTL(cfg.Cache.TTLDuration(), cache.WithFetchTimeout(cfg.Cache.FetchTimeoutDuration()))
	}
	return &App{
		authHandler:     handler.NewAuthHandler(deps.Tokens, deps.Upstream, deps.JWTSecret, cfg.Server.FrontendURL, cfg.DevMode, l),
		searchHandler:   handler.NewSearchHandler(deps.Tokens, deps.Upstream, deps.Caches, deps.JWTSecret, cfg.Cache.MaxFanOut, l),
		insightsHandler: handler.NewInsightsHandler(deps.Tokens, deps.Narrator, deps.JWTSecret, l),
		caches:          deps.Caches,
		originSecret:    deps.OriginSecret,
		devMode:         cfg.DevMode,
		frontendURL:     cfg.Server.FrontendURL,
		logger:          l,
	}
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	l = logger.OrNop(l)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		l.Info("using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
		l.Info("using SSMResolver (SSM Parameter Store)")
	}
	resolver = secret.NewCachedResolver(resolver)

	clientSecret, err := resolver.GetSecret(ctx, cfg.Spotify.ClientSecretParam)
	if err != nil {
		l.Warn("failed to resolve Spotify client secret", zap.Error(err))
	}
	jwtSecret, err := secret.GetOrDefault(ctx, resolver, cfg.Auth.JWTSecretParam, "default-dev-secret")
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("failed to resolve JWT secret: %w", err)
		}
		l.Warn("using default JWT secret", zap.Error(err))
	}
	originSecret, err := resolver.GetSecret(ctx, cfg.Auth.OriginSecretParam)
	if err != nil && !cfg.DevMode {
		l.Warn("failed to resolve API Gateway origin secret", zap.Error(err))
	}
	llmKey, err := resolver.GetSecret(ctx, cfg.Insights.APIKeyParam)
	if err != nil {
		l.Warn("insights disabled: no model API key", zap.Error(err))
	}

	// ---------- Encryption ----------
	var encryptor crypto.Encryptor
	if cfg.DevMode {
		encryptor = crypto.NewPlainEncryptor()
	} else {
		encryptor = crypto.NewKMSEncryptor(kms.NewFromConfig(awsCfg), cfg.Session.KMSKeyID)
	}

	// ---------- Session persistence ----------
	var (
		store  session.Store
		locker session.Locker
	)
	switch strings.ToLower(cfg.Session.Backend) {
	case "dynamodb":
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		store = session.NewDynamoStore(dynamoClient, cfg.Session.Table, encryptor)
		locker = session.NewDynamoLocker(dynamoClient, cfg.Session.LockTable)
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		store = session.NewRedisStore(rdb, encryptor)
		locker = session.NewRedisLocker(rdb)
	default:
		store = session.NewMemoryStore()
		locker = session.NewMemoryLocker()
	}
	l.Info("session backend ready", zap.String("backend", cfg.Session.Backend))

	tokens := token.NewManager(
		token.NewConfig(cfg.Spotify.ClientID, clientSecret, cfg.Spotify.RedirectURL),
		token.WithStore(store),
		token.WithLocker(locker),
		token.WithRefreshTimeout(cfg.Session.RefreshTimeoutDuration()),
		token.WithLockWait(cfg.Session.LockWaitDuration()),
		token.WithLogger(l.Named("token")),
	)

	narrator := insights.NewClient(insights.Config{
		BaseURL: cfg.Insights.BaseURL,
		APIKey:  llmKey,
		Model:   cfg.Insights.Model,
		Timeout: cfg.Insights.TimeoutDuration(),
	}, markdown.NewRenderer(), l.Named("insights"))

	return New(cfg, Deps{
		Tokens:       tokens,
		Upstream:     spotify.NewClient(cfg.Spotify.APIBaseURL, cfg.Spotify.TimeoutDuration(), l.Named("spotify")),
		Narrator:     narrator,
		JWTSecret:    jwtSecret,
		OriginSecret: originSecret,
	}, l), nil
}

// Caches exposes the response caches so long-running servers can sweep them.
func (app *App) Caches() *handler.Caches {
	return app.caches
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod
	requestID := uuid.NewString()
	log := app.logger.With(zap.String("request_id", requestID))

	log.Info("request", zap.String("method", method), zap.String("path", path))

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, requestID), nil
	}

	// Security: Verify Request Origin (CloudFront only)
	if !app.devMode {
		if req.Headers["X-Origin-Verify"] != app.originSecret && req.Headers["x-origin-verify"] != app.originSecret {
			log.Warn("security block: missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path = strings.TrimPrefix(path, "/api")

	var (
		resp events.APIGatewayProxyResponse
		err  error
	)
	switch {
	case path == "/auth/login" && method == http.MethodGet:
		resp, err = app.authHandler.Login(ctx, req)
	case path == "/auth/callback" && method == http.MethodGet:
		resp, err = app.authHandler.Callback(ctx, req)
	case path == "/auth/logout" && method == http.MethodPost:
		resp, err = app.authHandler.Logout(ctx, req)
	case path == "/auth/session" && method == http.MethodGet:
		resp, err = app.authHandler.Session(ctx, req)
	case path == "/search-playlists" && method == http.MethodGet:
		resp, err = app.searchHandler.SearchPlaylists(ctx, req)
	case path == "/search-track" && method == http.MethodGet:
		resp, err = app.searchHandler.SearchTrack(ctx, req)
	case path == "/insights" && method == http.MethodPost:
		resp, err = app.insightsHandler.Generate(ctx, req)
	default:
		resp = events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}
	}

	return app.corsResponse(must(resp, err, log), requestID), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse, requestID string) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	resp.Headers["Access-Control-Expose-Headers"] = "Retry-After,X-Request-Id"
	resp.Headers["X-Request-Id"] = requestID
	return resp
}

// must unwraps a handler response, logging the error.
func must(resp events.APIGatewayProxyResponse, err error, log *zap.Logger) events.APIGatewayProxyResponse {
	if err != nil {
		log.Error("handler error", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
