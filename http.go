package clubhouse

import (
	"errors"
	"net/http"
	"time"

	"github.com/castellan/clubhouse/middleware/sessionware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator moves session tokens between the auth flows and the
// cookie jar, and builds the middleware that guards protected routes.
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	validator        sessionware.TokenValidator
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetSessionTTL() > 0 {
		cookieDuration = cfg.GetSessionTTL()
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	if provider, ok := auther.(interface{ TokenService() TokenService }); ok {
		a.validator = claimsValidator{provider.TokenService()}
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// OptionalRoute extracts the session when a valid cookie is present and lets
// the request through anonymous otherwise. Registered ahead of the CSRF
// middleware so tokens bind to the session id instead of the caller's IP.
func (a *RouteAuthenticator) OptionalRoute() router.MiddlewareFunc {
	return a.protected(sessionware.Config{
		ErrorHandler: func(ctx router.Context, err error) error {
			return ctx.Next()
		},
	})
}

// ProtectedRoute requires a valid session cookie. Suspension and role checks
// happen in the handlers; this gate only proves the token.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(sessionware.Config{
		ErrorHandler: errorHandler,
	})
}

// ModeratorRoute requires a session whose role is moderator or above.
func (a *RouteAuthenticator) ModeratorRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(sessionware.Config{
		ErrorHandler: errorHandler,
		MinimumRole:  string(RoleModerator),
	})
}

// AdminRoute requires an admin session.
func (a *RouteAuthenticator) AdminRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(sessionware.Config{
		ErrorHandler: errorHandler,
		MinimumRole:  string(RoleAdmin),
	})
}

func (a *RouteAuthenticator) protected(cfg sessionware.Config) router.MiddlewareFunc {
	if a.validator == nil {
		panic("AUTH: route authenticator has no token validator")
	}

	cfg.TokenValidator = a.validator
	cfg.ContextKey = a.cfg.GetContextKey()
	cfg.TokenLookup = "cookie:" + a.cfg.GetCookieName()

	return sessionware.New(cfg)
}

// SignIn completes the code exchange and drops the session cookie.
func (a *RouteAuthenticator) SignIn(ctx router.Context, phone, code string) error {
	token, err := a.auth.CompleteSignIn(ctx.Context(), phone, code)
	if err != nil {
		a.Logger.Error("sign-in error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return nil
}

// SignUp completes registration and drops the first session cookie.
func (a *RouteAuthenticator) SignUp(ctx router.Context, req SignUpRequest) error {
	token, err := a.auth.CompleteSignUp(ctx.Context(), req)
	if err != nil {
		a.Logger.Error("sign-up error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context) {
	a.cookieDel(ctx, a.cfg.GetCookieName())
}

// SessionFromRequest pulls and validates the session cookie without the
// middleware, for handlers that render differently for signed-in members.
func (a *RouteAuthenticator) SessionFromRequest(ctx router.Context) (Session, error) {
	raw := ctx.Cookies(a.cfg.GetCookieName())
	if raw == "" {
		return nil, ErrUnableToFindSession
	}
	return a.auth.SessionFromToken(raw)
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *goerrors.Error

		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrStaleSecret) {
			richErr = ErrTokenExpired
		} else if errors.Is(err, ErrTokenMalformed) {
			richErr = ErrTokenMalformed
		} else {
			richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid session").
				WithCode(goerrors.CodeUnauthorized)
		}

		if optional {
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	r := ctx.Cookies(rejectedRouteCookie)
	if r == "" {
		return def[0]
	}
	a.cookieDel(ctx, rejectedRouteCookie)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     rejectedRouteCookie,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: "Lax",
	})
}

const rejectedRouteCookie = "rejected_route"

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"authentication error, redirecting to sign-in: %s (%s) path=%s",
		richErr.Message,
		richErr.TextCode,
		c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"middleware error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// claimsValidator adapts TokenService to the middleware's validator interface.
type claimsValidator struct {
	ts TokenService
}

func (v claimsValidator) Validate(raw string) (sessionware.AuthClaims, error) {
	claims, err := v.ts.Validate(raw)
	if err != nil {
		return nil, err
	}

	sc, ok := claims.(sessionware.AuthClaims)
	if !ok {
		return nil, ErrUnableToDecodeSession
	}

	return sc, nil
}
