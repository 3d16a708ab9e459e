package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/GoSim-25-26J-441/go-collab-graph/internal/api/http"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/api/http/middleware"
	collabhttp "github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/http"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/service"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	CORSOrigins []string
	Redis       *redis.Client
	Relay       *service.RelayService
	Layout      *service.LayoutService
	Metrics     *observability.Collector
	Logger      *zap.Logger
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Logger))
	r.Use(middleware.MetricsMiddleware(dep.Metrics))
	r.Use(cors.New(corsConfig(dep.CORSOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Redis)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(dep.Metrics.Handler()))

	api := r.Group("/api/v1")

	collabHandler := collabhttp.New(dep.Relay, dep.Layout, dep.CORSOrigins, dep.Logger)
	collabHandler.Register(api)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
