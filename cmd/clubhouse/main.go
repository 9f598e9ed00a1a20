package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/castellan/clubhouse"
	"github.com/castellan/clubhouse/cmd/clubhouse/config"
	"github.com/castellan/clubhouse/middleware/csrf"
	repo "github.com/castellan/clubhouse/repository"
)

type App struct {
	config *gconfig.Container[*config.BaseConfig]
	bunDB  *bun.DB
	auth   clubhouse.Authenticator
	auther *clubhouse.RouteAuthenticator
	repo   clubhouse.RepositoryManager
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("clubhouse"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	app.Config().GetAuth().BindApp(app.Config().App)

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPAuth(ctx, app); err != nil {
		panic(err)
	}

	app.srv.Serve(app.Config().GetServer().GetAddr())

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.Config().GetPersistence().GetDSN())
	if err != nil {
		return err
	}

	persistence.RegisterModel((*clubhouse.Member)(nil))
	persistence.RegisterModel((*clubhouse.InviteCode)(nil))
	persistence.RegisterModel((*clubhouse.VerificationCode)(nil))

	dialect := sqlitedialect.New()
	client, err := persistence.New(app.Config().GetPersistence(), db, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(clubhouse.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("sqlite"),
	)

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = repo.NewRepositoryManager(client.DB())

	return app.repo.Validate()
}

func WithHTTPServer(ctx context.Context, app *App) error {
	engine := django.New("./views", ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))
	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	srv.Router().Get("/healthz", func(ctx router.Context) error {
		if err := app.bunDB.PingContext(ctx.Context()); err != nil {
			return ctx.JSON(http.StatusInternalServerError, map[string]string{
				"status": "degraded",
			})
		}
		return ctx.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	app.srv = srv
	return nil
}

func WithHTTPAuth(ctx context.Context, app *App) error {
	authCfg := app.Config().GetAuth()

	dispatcher := buildDispatcher(app)

	authenticator := clubhouse.NewAuthenticator(authCfg, app.repo, dispatcher)
	authenticator.WithLogger(app.GetLogger("auth"))
	app.auth = authenticator

	auther, err := clubhouse.NewHTTPAuthenticator(authenticator, authCfg)
	if err != nil {
		return err
	}
	auther.WithLogger(app.GetLogger("auth:http"))
	app.auther = auther

	// Session extraction has to run before CSRF so tokens bind to the session
	// id; anonymous requests fall through and bind to the client IP instead.
	app.srv.Router().Use(auther.OptionalRoute())

	// CSRF tokens sign with a key derived from the session secret so the two
	// never need separate rotation.
	key := sha256.Sum256([]byte(authCfg.GetSigningKey()))
	app.srv.Router().Use(csrf.New(csrf.Config{
		SecureKey: key[:],
	}))

	clubhouse.RegisterAuthRoutes(app.srv.Router().Group("/"),
		clubhouse.WithControllerRepo(app.repo),
		clubhouse.WithControllerAuth(authenticator, auther),
		clubhouse.WithControllerLogger(app.GetLogger("auth:ctrl")),
	)

	return nil
}

// buildDispatcher picks the SMS transport: textbelt in production, log output
// everywhere else so dev codes land in the console.
func buildDispatcher(app *App) clubhouse.Dispatcher {
	sms := app.Config().GetSms()

	if sms.GetProvider() == "textbelt" {
		return clubhouse.NewTextbeltDispatcher(sms.GetAPIKey()).
			WithLogger(app.GetLogger("sms"))
	}

	return clubhouse.NewLogDispatcher(app.GetLogger("sms"))
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
