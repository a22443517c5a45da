package router // package router defines how HTTP routes are registered for the gateway

import (
	"time"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/cinema-seat-client/internal/handler"    // handlers that drive the booking views
	"github.com/iliyamo/cinema-seat-client/internal/middleware" // session authentication and role enforcement
)

// Deps bundles what the routes need.  Receipts is nil when the receipts
// ledger is disabled.
type Deps struct {
	Views        *handler.ViewHandler
	Receipts     *handler.ReceiptHandler
	JWTSecret    string
	AllowedRoles []string
	Now          func() time.Time
}

// RegisterRoutes registers every route of the gateway on the provided
// Echo instance.  Only the health check is public; everything under /v1
// needs a valid session.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Map GET /healthz to the Health handler so load balancers can probe
	// the gateway without a token.
	e.GET("/healthz", handler.Health(d.Views))

	// Protected endpoints live under /v1.  SessionAuth runs first and
	// stores the session; RequireRole then checks the role claim.
	v1 := e.Group("/v1")
	v1.Use(middleware.SessionAuth(d.JWTSecret, d.Now))
	if len(d.AllowedRoles) > 0 {
		v1.Use(middleware.RequireRole(d.AllowedRoles...))
	}

	// Booking view lifecycle: open, read, toggle seats, book, leave.
	v1.POST("/views", d.Views.Create)
	v1.GET("/views/:id", d.Views.Get)
	v1.DELETE("/views/:id", d.Views.Delete)
	v1.POST("/views/:id/seats/:seat/toggle", d.Views.Toggle)
	v1.POST("/views/:id/book", d.Views.Book)
	// Dismiss a notice before it times out.
	v1.DELETE("/views/:id/notices/:notice", d.Views.Dismiss)

	// Receipts ledger, only when enabled.
	if d.Receipts != nil {
		v1.GET("/receipts", d.Receipts.List)
	}
}
