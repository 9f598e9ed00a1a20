package clubhouse

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z]{4}-\d{3}$`)

// GetRouterSession pulls the validated claims the session middleware left in
// the router context and converts them to a Session.
func GetRouterSession(c router.Context, key string) (Session, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := raw.(AuthClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return sessionFromClaims(claims)
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Home, controller.HomeShow).
		SetName("home.get")

	app.Post(controller.Routes.SendCode, controller.SendCodePost).
		SetName("send-code.post")
	app.Post(controller.Routes.Verify, controller.VerifyPost).
		SetName("verify.post")

	app.Get(controller.Routes.Join, controller.JoinShow).
		SetName("join.get")
	app.Post(controller.Routes.Join, controller.JoinPost).
		SetName("join.post")
	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("register.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	member := controller.Auther.ProtectedRoute(
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)
	moderator := controller.Auther.ModeratorRoute(
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)
	admin := controller.Auther.AdminRoute(
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.Get(controller.Routes.Welcome, member(controller.WelcomeShow)).
		SetName("welcome.get")
	app.Get(controller.Routes.Dashboard, member(controller.DashboardShow)).
		SetName("dashboard.get")

	app.Post(controller.Routes.Invites, moderator(controller.InviteCreate)).
		SetName("invites.post")

	app.Get(controller.Routes.Admin, admin(controller.AdminShow)).
		SetName("admin.get")
}

type AuthControllerRoutes struct {
	Home      string
	SendCode  string
	Verify    string
	Join      string
	Register  string
	Logout    string
	Welcome   string
	Dashboard string
	Invites   string
	Admin     string
}

type AuthControllerViews struct {
	Home      string
	Verify    string
	Join      string
	Register  string
	Welcome   string
	Dashboard string
	Admin     string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Auth         Authenticator
	Auther       *RouteAuthenticator
	Ledger       InviteLedger
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Home:      "/",
			SendCode:  "/send-code",
			Verify:    "/verify",
			Join:      "/join",
			Register:  "/register",
			Logout:    "/logout",
			Welcome:   "/welcome",
			Dashboard: "/dashboard",
			Invites:   "/invites",
			Admin:     "/admin",
		},
		Views: &AuthControllerViews{
			Home:      "home",
			Verify:    "verify",
			Join:      "join",
			Register:  "register",
			Welcome:   "welcome",
			Dashboard: "dashboard",
			Admin:     "admin",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Ledger == nil {
		if provider, ok := c.Auth.(interface{ InviteLedger() InviteLedger }); ok {
			c.Ledger = provider.InviteLedger()
		} else {
			panic("Missing InviteLedger in auth controller...")
		}
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuth(auth Authenticator, auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		c.Auther = auther
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func (a *AuthController) HomeShow(ctx router.Context) error {
	if session, err := a.Auther.SessionFromRequest(ctx); err == nil && session != nil {
		return ctx.Redirect(a.Routes.Dashboard, router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Home, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// SendCodePayload is the sign-in form payload
type SendCodePayload struct {
	Phone string `form:"phone" json:"phone"`
}

// Validate will run validation rules
func (r SendCodePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Phone,
			validation.Required,
			validation.By(validatePhone),
		),
	)
}

func (a *AuthController) SendCodePost(ctx router.Context) error {
	payload := new(SendCodePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("send code parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Home, router.ViewContext{
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.Home, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Auth.StartSignIn(ctx.Context(), payload.Phone); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return flash.WithError(ctx, router.ViewContext{
				"error_message": "We don't know that number. Got an invite?",
			}).Redirect(a.Routes.Join, fiber.StatusSeeOther)
		}

		a.Logger.Error("send code error: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": userFacingMessage(err),
		}).Render(a.Views.Home, router.ViewContext{
			"record": payload,
		})
	}

	return ctx.Render(a.Views.Verify, router.ViewContext{
		"phone": payload.Phone,
	})
}

// VerifyPayload is the code verification form payload
type VerifyPayload struct {
	Phone string `form:"phone" json:"phone"`
	Code  string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r VerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Phone,
			validation.Required,
			validation.By(validatePhone),
		),
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(6, 6),
			is.Digit,
		),
	)
}

func (a *AuthController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Verify, router.ViewContext{
			"phone": payload.Phone,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.Verify, router.ViewContext{
			"phone":      payload.Phone,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Auther.SignIn(ctx, payload.Phone, payload.Code); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": userFacingMessage(err),
		}).Render(a.Views.Verify, router.ViewContext{
			"phone": payload.Phone,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, a.Routes.Dashboard)
	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect(a.Routes.Home, router.StatusTemporaryRedirect)
}

func (a *AuthController) JoinShow(ctx router.Context) error {
	return ctx.Render(a.Views.Join, router.ViewContext{
		"errors": map[string]string{},
	})
}

// JoinPayload carries the invite code plus the phone to verify
type JoinPayload struct {
	Invite string `form:"invite" json:"invite"`
	Phone  string `form:"phone" json:"phone"`
}

// Validate will run validation rules
func (r JoinPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Invite,
			validation.Required,
			validation.Match(inviteCodePattern),
		),
		validation.Field(
			&r.Phone,
			validation.Required,
			validation.By(validatePhone),
		),
	)
}

func (a *AuthController) JoinPost(ctx router.Context) error {
	payload := new(JoinPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("join parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Join, router.ViewContext{})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.Join, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Auth.RequestSignUpCode(ctx.Context(), payload.Invite, payload.Phone); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": userFacingMessage(err),
		}).Render(a.Views.Join, router.ViewContext{
			"record": payload,
		})
	}

	return ctx.Render(a.Views.Register, router.ViewContext{
		"invite": payload.Invite,
		"phone":  payload.Phone,
	})
}

// RegisterPayload finishes sign-up: invite, phone, display name, SMS code
type RegisterPayload struct {
	Invite string `form:"invite" json:"invite"`
	Phone  string `form:"phone" json:"phone"`
	Name   string `form:"name" json:"name"`
	Code   string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Invite,
			validation.Required,
			validation.Match(inviteCodePattern),
		),
		validation.Field(
			&r.Phone,
			validation.Required,
			validation.By(validatePhone),
		),
		validation.Field(
			&r.Name,
			validation.Required,
			validation.Length(1, 80),
		),
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(6, 6),
			is.Digit,
		),
	)
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.Register, router.ViewContext{
			"invite":     payload.Invite,
			"phone":      payload.Phone,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := SignUpRequest{
		InviteCode: payload.Invite,
		Phone:      payload.Phone,
		Name:       payload.Name,
		Code:       payload.Code,
	}

	if err := a.Auther.SignUp(ctx, req); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": userFacingMessage(err),
		}).Render(a.Views.Register, router.ViewContext{
			"invite": payload.Invite,
			"phone":  payload.Phone,
			"name":   payload.Name,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome to the club",
	}).Redirect(a.Routes.Welcome, fiber.StatusSeeOther)
}

func (a *AuthController) WelcomeShow(ctx router.Context) error {
	member, err := a.currentMember(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if member.FirstLogin {
		if err := a.Repo.Members().MarkWelcomed(ctx.Context(), member.ID); err != nil {
			a.Logger.Error("mark welcomed error: %s", err)
		}
	}

	return ctx.Render(a.Views.Welcome, router.ViewContext{
		"member": member,
	})
}

func (a *AuthController) DashboardShow(ctx router.Context) error {
	member, err := a.currentMember(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	if member.FirstLogin {
		return ctx.Redirect(a.Routes.Welcome, router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"member":       member,
		"can_moderate": CanModerate(member.Role),
	})
}

func (a *AuthController) InviteCreate(ctx router.Context) error {
	member, err := a.currentMember(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	invite, err := a.Ledger.Issue(ctx.Context(), member.ID)
	if err != nil {
		a.Logger.Error("invite issue error: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": userFacingMessage(err),
		}).Redirect(a.Routes.Dashboard, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invite minted: " + invite.Code,
	}).Redirect(a.Routes.Dashboard, fiber.StatusSeeOther)
}

func (a *AuthController) AdminShow(ctx router.Context) error {
	member, err := a.currentMember(ctx)
	if err != nil {
		return a.Auther.ErrorHandler(ctx, err)
	}

	open, err := a.Ledger.Open(ctx.Context())
	if err != nil {
		a.Logger.Error("open invites list error: %s", err)
		open = nil
	}

	count, err := a.Repo.Members().CountActive(ctx.Context())
	if err != nil {
		a.Logger.Error("member count error: %s", err)
	}

	return ctx.Render(a.Views.Admin, router.ViewContext{
		"member":       member,
		"open_invites": open,
		"member_count": count,
	})
}

func (a *AuthController) currentMember(ctx router.Context) (*Member, error) {
	session, err := GetRouterSession(ctx, a.Auther.cfg.GetContextKey())
	if err != nil {
		return nil, err
	}
	return a.Auth.MemberFromSession(ctx.Context(), session)
}

// validatePhone is a form-level shape check against the package default
// region. Authoritative canonicalization happens in the Auther, which carries
// the configured region.
func validatePhone(value any) error {
	s, _ := value.(string)
	if _, err := CanonicalPhone(s); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// userFacingMessage returns the rich error message when one exists, and a
// generic line otherwise so internals never leak into templates.
func userFacingMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return "Something went wrong, please try again"
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
