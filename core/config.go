package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
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
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	NATSConfig struct {
		URL string
	}

	// AttendanceConfig holds the classification policy knobs.
	// Ratios are written as "num/den" to keep cut points exact.
	AttendanceConfig struct {
		TargetSampleCount int
		PresentRatio      string
		ShortRatio        string
		LateAfter         time.Duration
		LowAccuracyMeters float64
		SessionDuration   time.Duration
		TokenTTL          time.Duration
	}

	SamplingConfig struct {
		Interval       time.Duration
		AttemptTimeout time.Duration
		MaximumAge     time.Duration
	}

	Config struct {
		Debug        bool
		TestMode     bool
		Env          string
		Build        string
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server     ServerConfig
		Database   DatabaseConfig
		NATS       NATSConfig
		Attendance AttendanceConfig
		Sampling   SamplingConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Hazira")
	v.SetDefault("secretKey", "7y$u0m!kq2+xj3f^a=w8r(hz1n&d)pc4v#l9e_t6b*o5s@g")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", 5*time.Second)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "hazira")
	v.SetDefault("dbUser", "hazira")
	v.SetDefault("dbPassword", "hazira")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)

	v.SetDefault("natsURL", "")

	v.SetDefault("targetSampleCount", 12)
	v.SetDefault("presentRatio", "2/3")
	v.SetDefault("shortRatio", "1/6")
	v.SetDefault("lateAfter", 5*time.Minute)
	v.SetDefault("lowAccuracyMeters", 100.0)
	v.SetDefault("sessionDuration", time.Hour)
	v.SetDefault("tokenTTL", 10*time.Minute)

	v.SetDefault("samplingInterval", 5*time.Second)
	v.SetDefault("samplingAttemptTimeout", 20*time.Second)
	v.SetDefault("samplingMaximumAge", 5*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
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
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ReadTimeout:        v.GetDuration("serverReadTimeout"),
			WriteTimeout:       v.GetDuration("serverWriteTimeout"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
		},
		NATS: NATSConfig{
			URL: v.GetString("natsURL"),
		},
		Attendance: AttendanceConfig{
			TargetSampleCount: v.GetInt("targetSampleCount"),
			PresentRatio:      v.GetString("presentRatio"),
			ShortRatio:        v.GetString("shortRatio"),
			LateAfter:         v.GetDuration("lateAfter"),
			LowAccuracyMeters: v.GetFloat64("lowAccuracyMeters"),
			SessionDuration:   v.GetDuration("sessionDuration"),
			TokenTTL:          v.GetDuration("tokenTTL"),
		},
		Sampling: SamplingConfig{
			Interval:       v.GetDuration("samplingInterval"),
			AttemptTimeout: v.GetDuration("samplingAttemptTimeout"),
			MaximumAge:     v.GetDuration("samplingMaximumAge"),
		},
	}
}
