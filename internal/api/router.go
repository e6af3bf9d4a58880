package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/d60-Lab/gin-blog/config"
	_ "github.com/d60-Lab/gin-blog/docs"
	"github.com/d60-Lab/gin-blog/internal/api/handler"
	"github.com/d60-Lab/gin-blog/internal/api/middleware"
	"github.com/d60-Lab/gin-blog/internal/service"
	"github.com/d60-Lab/gin-blog/pkg/response"
)

// Deps 路由依赖
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Tokens  *service.TokenManager
	Handler *handler.Handler
}

// SetupRouter 组装中间件与路由
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)
	middleware.RegisterValidators()

	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	r.Use(middleware.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Logger())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", healthz(d.DB))
	if cfg.Server.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := d.Handler
	auth := middleware.Auth(d.Tokens)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/profile", auth, h.Profile)
	r.POST("/logout", h.Logout)

	r.GET("/post", h.ListPosts)
	r.GET("/post/:id", h.GetPost)
	r.POST("/post", auth, h.CreatePost)
	r.PUT("/post", auth, h.UpdatePost)

	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	}
}
