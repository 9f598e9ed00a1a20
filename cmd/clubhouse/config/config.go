package config

import (
	"fmt"
	"time"
)

// BaseConfig is the root configuration tree. Values load from config files
// and environment through go-config; the getters exist so the rest of the
// app depends on interfaces, not this struct.
type BaseConfig struct {
	App         App         `json:"app" yaml:"app"`
	Auth        Auth        `json:"auth" yaml:"auth"`
	Persistence Persistence `json:"persistence" yaml:"persistence"`
	Sms         Sms         `json:"sms" yaml:"sms"`
	Server      Server      `json:"server" yaml:"server"`
}

func (a BaseConfig) Validate() error {
	if a.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}
	if len(a.Auth.SigningKey) < 32 {
		return fmt.Errorf("auth.signing_key must be at least 32 bytes")
	}
	return nil
}

func (a *BaseConfig) GetApp() *App                 { return &a.App }
func (a *BaseConfig) GetAuth() *Auth               { return &a.Auth }
func (a *BaseConfig) GetPersistence() *Persistence { return &a.Persistence }
func (a *BaseConfig) GetSms() *Sms                 { return &a.Sms }
func (a *BaseConfig) GetServer() *Server           { return &a.Server }

type App struct {
	Name       string `json:"name" yaml:"name"`
	Production bool   `json:"production" yaml:"production"`
}

func (a App) GetName() string {
	if a.Name == "" {
		return "Clubhouse"
	}
	return a.Name
}

func (a App) IsProduction() bool { return a.Production }

type Auth struct {
	SigningKey            string   `json:"signing_key" yaml:"signing_key"`
	RetiredSigningKeys    []string `json:"retired_signing_keys" yaml:"retired_signing_keys"`
	Issuer                string   `json:"issuer" yaml:"issuer"`
	ContextKey            string   `json:"context_key" yaml:"context_key"`
	CookieName            string   `json:"cookie_name" yaml:"cookie_name"`
	SessionTTLExpression  string   `json:"session_ttl" yaml:"session_ttl"`
	CodeTTLExpression     string   `json:"code_ttl" yaml:"code_ttl"`
	CodeAttempts          int      `json:"code_attempts" yaml:"code_attempts"`
	CodeRequestMax        int      `json:"code_request_max" yaml:"code_request_max"`
	CodeRequestWindowExpr string   `json:"code_request_window" yaml:"code_request_window"`
	InviteTTLExpression   string   `json:"invite_ttl" yaml:"invite_ttl"`
	MaxMembers            int      `json:"max_members" yaml:"max_members"`
	DefaultRegion         string   `json:"default_region" yaml:"default_region"`

	siteName   string
	production bool
}

// BindApp copies app-level values the auth section exposes through the
// clubhouse.Config interface.
func (a *Auth) BindApp(app App) {
	a.siteName = app.GetName()
	a.production = app.IsProduction()
}

func (a *Auth) GetSigningKey() string {
	return a.SigningKey
}

func (a *Auth) GetRetiredSigningKeys() []string {
	return a.RetiredSigningKeys
}

func (a *Auth) GetIssuer() string {
	if a.Issuer == "" {
		return "clubhouse"
	}
	return a.Issuer
}

func (a *Auth) GetContextKey() string {
	if a.ContextKey == "" {
		return "session"
	}
	return a.ContextKey
}

func (a *Auth) GetCookieName() string {
	if a.CookieName == "" {
		return "clubhouse_session"
	}
	return a.CookieName
}

func (a *Auth) GetSessionTTL() time.Duration {
	return durationOr(a.SessionTTLExpression, 30*24*time.Hour)
}

func (a *Auth) GetCodeTTL() time.Duration {
	return durationOr(a.CodeTTLExpression, 5*time.Minute)
}

func (a *Auth) GetCodeAttempts() int {
	if a.CodeAttempts <= 0 {
		return 3
	}
	return a.CodeAttempts
}

func (a *Auth) GetCodeRequestMax() int {
	if a.CodeRequestMax <= 0 {
		return 3
	}
	return a.CodeRequestMax
}

func (a *Auth) GetCodeRequestWindow() time.Duration {
	return durationOr(a.CodeRequestWindowExpr, 10*time.Minute)
}

// GetInviteTTL returns zero when invites never expire.
func (a *Auth) GetInviteTTL() time.Duration {
	return durationOr(a.InviteTTLExpression, 0)
}

func (a *Auth) GetMaxMembers() int {
	if a.MaxMembers <= 0 {
		return 200
	}
	return a.MaxMembers
}

func (a *Auth) GetDefaultRegion() string {
	if a.DefaultRegion == "" {
		return "US"
	}
	return a.DefaultRegion
}

func (a *Auth) GetSiteName() string {
	if a.siteName == "" {
		return "Clubhouse"
	}
	return a.siteName
}

func (a *Auth) IsProduction() bool { return a.production }

type Persistence struct {
	Debug                 bool   `json:"debug" yaml:"debug"`
	Driver                string `json:"driver" yaml:"driver"`
	DSN                   string `json:"dsn" yaml:"dsn"`
	Server                string `json:"server" yaml:"server"`
	PingTimeoutExpression string `json:"ping_timeout" yaml:"ping_timeout"`
}

func (p Persistence) GetDebug() bool { return p.Debug }

func (p Persistence) GetDriver() string {
	if p.Driver == "" {
		return "sqlite"
	}
	return p.Driver
}

func (p Persistence) GetDSN() string {
	if p.DSN == "" {
		return "file:clubhouse.db?cache=shared&mode=rwc"
	}
	return p.DSN
}

func (p Persistence) GetServer() string { return p.Server }

func (p Persistence) GetOtelIdentifier() string { return "" }

func (p Persistence) GetPingTimeout() time.Duration {
	return durationOr(p.PingTimeoutExpression, 5*time.Second)
}

type Sms struct {
	Provider string `json:"provider" yaml:"provider"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

func (s Sms) GetProvider() string {
	if s.Provider == "" {
		return "log"
	}
	return s.Provider
}

func (s Sms) GetAPIKey() string { return s.APIKey }

type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

func (s Server) GetAddr() string {
	if s.Addr == "" {
		return ":8577"
	}
	return s.Addr
}

func durationOr(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(fmt.Sprintf("unable to parse time: expr %s", expr))
	}
	return dur
}
