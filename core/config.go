package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds the app configuration, loaded once at startup.
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		AppName  string
		Build    string
		WorkDir  string

		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		Session  SessionConfig
		Security SecurityConfig
		Database DatabaseConfig

		// SessionDatabase is the Postgres store backing server-side sessions.
		// Sessions fall back to an in-memory store when it is not configured.
		SessionDatabase DatabaseConfig
	}

	ServerConfig struct {
		Host               string
		Port               int
		ShutdownTimeout    time.Duration
		WSTicketExpiration time.Duration
	}

	SessionConfig struct {
		CookieName    string
		MaxAge        time.Duration
		SweepInterval time.Duration
	}

	SecurityConfig struct {
		MaxLoginAttempts int
		LockoutDuration  time.Duration
		BcryptCost       int
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		DisableTLS bool
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewConfig loads configuration from defaults, an optional config/.env.<env>
// file and ENV-prefixed environment variables (eg. PROD_SECRETKEY).
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Fieldops")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "q0e2-rty)opa$+75=km&xcvb8(h!z)#*w2(#gh4y^$neoq7wqe")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdownTimeout", 20*time.Second)
	v.SetDefault("server.wsTicketExpiration", 30*time.Second)

	v.SetDefault("session.cookieName", "tqw_session")
	v.SetDefault("session.maxAge", 6*time.Hour)
	v.SetDefault("session.sweepInterval", 10*time.Minute)

	v.SetDefault("security.maxLoginAttempts", 5)
	v.SetDefault("security.lockoutDuration", 15*time.Minute)
	v.SetDefault("security.bcryptCost", 10)

	v.SetDefault("database.engine", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "operaciones_tqw")

	v.SetDefault("sessionDatabase.engine", "postgres")
	v.SetDefault("sessionDatabase.host", "")
	v.SetDefault("sessionDatabase.port", 5432)
	v.SetDefault("sessionDatabase.user", "")
	v.SetDefault("sessionDatabase.password", "")
	v.SetDefault("sessionDatabase.name", "")
	v.SetDefault("sessionDatabase.disableTLS", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetDefault("testMode", env == "TEST")
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, fmt.Errorf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Env:          env,
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		WorkDir:      wd,
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Port:               v.GetInt("server.port"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			WSTicketExpiration: v.GetDuration("server.wsTicketExpiration"),
		},
		Session: SessionConfig{
			CookieName:    v.GetString("session.cookieName"),
			MaxAge:        v.GetDuration("session.maxAge"),
			SweepInterval: v.GetDuration("session.sweepInterval"),
		},
		Security: SecurityConfig{
			MaxLoginAttempts: v.GetInt("security.maxLoginAttempts"),
			LockoutDuration:  v.GetDuration("security.lockoutDuration"),
			BcryptCost:       v.GetInt("security.bcryptCost"),
		},
		Database: DatabaseConfig{
			Engine:   v.GetString("database.engine"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
		},
		SessionDatabase: DatabaseConfig{
			Engine:     v.GetString("sessionDatabase.engine"),
			Host:       v.GetString("sessionDatabase.host"),
			Port:       v.GetInt("sessionDatabase.port"),
			User:       v.GetString("sessionDatabase.user"),
			Password:   v.GetString("sessionDatabase.password"),
			Name:       v.GetString("sessionDatabase.name"),
			DisableTLS: v.GetBool("sessionDatabase.disableTLS"),
		},
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	if c.Env != "PROD" {
		return nil
	}
	var missing []string
	if os.Getenv("PROD_SECRETKEY") == "" {
		missing = append(missing, "PROD_SECRETKEY")
	}
	if os.Getenv("PROD_DATABASE_PASSWORD") == "" {
		missing = append(missing, "PROD_DATABASE_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required PROD settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
