package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/autolead/internal/config"
	"github.com/example/autolead/internal/handlers"
	"github.com/example/autolead/internal/middleware"
)

// Handlers is every HTTP handler the API serves.
type Handlers struct {
	Auth          *handlers.AuthHandler
	PasswordReset *handlers.PasswordResetHandler
	Profile       *handlers.ProfileHandler
	Quotes        *handlers.QuoteHandler
	Valuations    *handlers.ValuationHandler
	Cars          *handlers.CarHandler
	Users         *handlers.UserHandler
	Admin         *handlers.AdminHandler
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, h Handlers, cfg *config.Config) {
	api := app.Group("/api")
	optional := middleware.OptionalAuth(cfg.JWTSecret)
	required := middleware.AuthMiddleware(cfg.JWTSecret)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/setup-password", h.Auth.SetupPassword)
	auth.Get("/session", required, h.Auth.Session)
	auth.Post("/forgot-password", h.PasswordReset.ForgotPassword)
	auth.Post("/verify-reset-code", h.PasswordReset.VerifyResetCode)
	auth.Post("/reset-password", h.PasswordReset.ResetPassword)

	// Car catalog
	cars := api.Group("/cars")
	cars.Get("/", h.Cars.ListCars)
	cars.Get("/:id", h.Cars.GetCar)

	// Loan quote wizard
	quotes := api.Group("/quotes", optional)
	quotes.Post("/calculate", h.Quotes.Calculate)
	quotes.Post("/flow", h.Quotes.StartFlow)
	quotes.Post("/flow/:id/buyer", h.Quotes.SubmitBuyer)
	quotes.Post("/flow/:id/verify", h.Quotes.Verify)
	quotes.Post("/flow/:id/resend", h.Quotes.Resend)
	quotes.Patch("/flow/:id/term", h.Quotes.ChangeTerm)
	quotes.Get("/:id", h.Quotes.Get)
	quotes.Post("/:id/email", h.Quotes.Email)

	// Seller valuation wizard
	valuations := api.Group("/valuations", optional)
	valuations.Post("/estimate", h.Valuations.Estimate)
	valuations.Get("/resume", h.Valuations.Resume)
	valuations.Post("/flow", h.Valuations.StartFlow)
	valuations.Post("/flow/:id/seller", h.Valuations.SubmitSeller)
	valuations.Post("/flow/:id/verify", h.Valuations.Verify)
	valuations.Post("/flow/:id/resend", h.Valuations.Resend)
	valuations.Post("/flow/:id/select", h.Valuations.SelectTier)
	valuations.Post("/flow/:id/decision", h.Valuations.Decide)

	// Protected routes
	api.Post("/listings/:id/photos", required, h.Valuations.AddPhotos)

	profile := api.Group("/profile", required)
	profile.Get("/", h.Profile.GetProfile)
	profile.Put("/", h.Profile.UpdateProfile)
	profile.Get("/listings", h.Profile.ListListings)

	// Admin routes
	admin := api.Group("/admin", middleware.AdminKeyMiddleware(cfg.AdminAPIKey))
	admin.Get("/dashboard", h.Admin.DashboardStats)
	admin.Get("/diagnostics", h.Admin.Diagnostics)
	admin.Post("/catalog/sync", h.Admin.CatalogSync)
	admin.Get("/users", h.Users.ListUsers)
	admin.Post("/users", h.Users.CreateUser)
	admin.Get("/users/:id", h.Users.GetUser)
	admin.Put("/users/:id", h.Users.UpdateUser)
	admin.Delete("/users/:id", h.Users.DeleteUser)
}
