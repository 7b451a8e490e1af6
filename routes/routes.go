package routes

import (
	"github.com/gin-gonic/gin"

	controllers "github.com/phillip/campus-events-go/controllers"
	middleware "github.com/phillip/campus-events-go/middleware"
)

// clientRoutes are the browser paths that resolve to a view model.
var clientRoutes = []string{"/", "/events", "/events/:id", "/host", "/host/:id", "/notifications", "/login", "/signup"}

func SetupRoutes(r *gin.Engine, d *controllers.Deps, limiter *middleware.RateLimiter) {
	r.Use(
		middleware.Session(d.Sessions, d.SecureCookies(), d.Log),
		middleware.OptionalAuth(d.Accounts),
	)
	auth := middleware.RequireAuth()

	// public, rate limited
	authGroup := r.Group("/auth")
	if limiter != nil {
		authGroup.Use(limiter.Limit())
	}
	{
		authGroup.POST("/signup", controllers.SignUp(d))
		authGroup.POST("/signin", controllers.SignIn(d))
		authGroup.POST("/signout", controllers.SignOut(d))
		authGroup.POST("/password-reset", controllers.RequestPasswordReset(d))
		authGroup.POST("/password-reset/confirm", controllers.ConfirmPasswordReset(d))
		authGroup.GET("/verify", controllers.VerifyEmail(d))
	}

	api := r.Group("/api")
	{
		api.GET("/me", auth, controllers.Me(d))

		// Events
		api.GET("/events", controllers.ListEvents(d))
		api.GET("/events/:id", controllers.GetEvent(d))
		api.GET("/events/:id/ics", controllers.EventICS(d))
		api.POST("/events", auth, controllers.CreateEvent(d))
		api.PATCH("/events/:id", auth, controllers.UpdateEvent(d))
		api.DELETE("/events/:id", auth, controllers.DeleteEvent(d))
	}

	bookmarks := api.Group("/bookmarks")
	bookmarks.Use(auth)
	{
		bookmarks.GET("", controllers.ListBookmarks(d))
		bookmarks.POST("/prune", controllers.PruneBookmarks(d))
		bookmarks.POST("/:eventId", controllers.AddBookmark(d))
		bookmarks.DELETE("/:eventId", controllers.RemoveBookmark(d))
	}

	notifs := api.Group("/notifications")
	notifs.Use(auth)
	{
		notifs.GET("", controllers.ListNotifications(d))
	}

	maintenance := api.Group("/maintenance")
	maintenance.Use(auth)
	{
		maintenance.POST("/cleanup", controllers.CleanupExpired(d))
	}

	// browser view model
	for _, path := range clientRoutes {
		r.GET(path, controllers.ShowView(d))
	}
	ui := r.Group("/ui")
	{
		ui.POST("/nav", controllers.NavClick(d))
		ui.POST("/path", controllers.PathChanged(d))
		ui.POST("/view/:id", controllers.ViewEvent(d))
		ui.POST("/map/placing", controllers.SetPlacing(d))
		ui.POST("/map/click", controllers.MapClick(d))
		ui.POST("/map/pins", controllers.ShowPins(d))
	}
}
