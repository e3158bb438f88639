package http

import (
	"github.com/gin-gonic/gin"

	"syllabussync/internal/bootstrap"
	"syllabussync/internal/transport/http/handler"
	"syllabussync/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger.WithPrefix("http")), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/health/live", healthHandler.Live)
	router.GET("/health/ready", healthHandler.Ready)

	services := app.Services
	secret := app.Config.Auth.JWTSecret
	authHandler := handler.NewAuthHandler(services.Auth)
	fileHandler := handler.NewFileHandler(services.Upload)
	documentHandler := handler.NewDocumentHandler(services.Documents)
	qaHandler := handler.NewQAHandler(services.QA)
	calendarHandler := handler.NewCalendarHandler(services.Calendar)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(secret), authHandler.Me)

	// requests without a token act as the placeholder user
	api := v1.Group("")
	api.Use(middleware.OptionalAuthJWT(secret, services.Auth.DefaultUser))

	files := api.Group("/files")
	files.POST("/presign", fileHandler.Presign)
	files.POST("/notify", fileHandler.Notify)
	files.GET("/preview", fileHandler.Preview)

	documents := api.Group("/documents")
	documents.GET("", documentHandler.List)
	documents.GET("/:id/versions", documentHandler.Versions)
	documents.DELETE("/versions/:id", documentHandler.DeleteVersion)
	documents.POST("/versions/:id/stages/:stage", documentHandler.RequeueStage)

	qa := api.Group("/qa")
	qa.GET("/ask", qaHandler.Ask)
	qa.POST("/chat", qaHandler.Chat)

	api.GET("/calendar/ics", calendarHandler.ICS)

	return router
}
