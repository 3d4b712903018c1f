package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// AccountsConfig points at the account directory service.
	AccountsConfig struct {
		BaseURL  string
		Timeout  time.Duration
		CacheTTL time.Duration
	}

	RedisConfig struct {
		URL string
	}

	StorageConfig struct {
		Driver    string // local | s3
		LocalDir  string
		Bucket    string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
		CDNURL    string
	}

	RemindersConfig struct {
		Enabled  bool
		Schedule string
		Window   time.Duration
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		WorkDir          string

		Server    ServerConfig
		Database  DatabaseConfig
		Accounts  AccountsConfig
		Redis     RedisConfig
		Storage   StorageConfig
		Reminders RemindersConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Kazi")
	v.SetDefault("secretKey", "f1^t0-9mb!2k#w_zq8$v@l4x(c7p)ne&h3yr%o6ua+j5=di")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Kazi")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", 10*time.Second)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("disableReqLogs", false)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "kazi")
	v.SetDefault("dbUser", "kazi")
	v.SetDefault("dbPassword", "kazi")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("accountsBaseURL", "http://localhost:8001/api")
	v.SetDefault("accountsTimeout", 3*time.Second)
	v.SetDefault("accountsCacheTTL", 10*time.Minute)
	v.SetDefault("redisURL", "")

	v.SetDefault("storageDriver", "local")
	v.SetDefault("storageLocalDir", filepath.Join(os.TempDir(), "kazi-uploads"))
	v.SetDefault("storageBucket", "")
	v.SetDefault("storageRegion", "")
	v.SetDefault("storageEndpoint", "")
	v.SetDefault("storageAccessKey", "")
	v.SetDefault("storageSecretKey", "")
	v.SetDefault("storageCDNURL", "")

	v.SetDefault("remindersEnabled", false)
	v.SetDefault("remindersSchedule", "0 7 * * *")
	v.SetDefault("remindersWindow", 24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		WorkDir:        wd,
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ReadTimeout:        v.GetDuration("serverReadTimeout"),
			WriteTimeout:       v.GetDuration("serverWriteTimeout"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
			DisableReqLogs:     v.GetBool("disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Accounts: AccountsConfig{
			BaseURL:  v.GetString("accountsBaseURL"),
			Timeout:  v.GetDuration("accountsTimeout"),
			CacheTTL: v.GetDuration("accountsCacheTTL"),
		},
		Redis: RedisConfig{URL: v.GetString("redisURL")},
		Storage: StorageConfig{
			Driver:    v.GetString("storageDriver"),
			LocalDir:  v.GetString("storageLocalDir"),
			Bucket:    v.GetString("storageBucket"),
			Region:    v.GetString("storageRegion"),
			Endpoint:  v.GetString("storageEndpoint"),
			AccessKey: v.GetString("storageAccessKey"),
			SecretKey: v.GetString("storageSecretKey"),
			CDNURL:    v.GetString("storageCDNURL"),
		},
		Reminders: RemindersConfig{
			Enabled:  v.GetBool("remindersEnabled"),
			Schedule: v.GetString("remindersSchedule"),
			Window:   v.GetDuration("remindersWindow"),
		},
	}
}
