package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/example/gym-scheduler/internal/recurrence"
)

// MinTokenSecretLength is the shortest accepted access token signing secret.
const MinTokenSecretLength = 32

// Config captures environment driven configuration values for the gym scheduler.
type Config struct {
	HTTPPort            int
	SQLitePath          string
	TokenSecret         string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	Location            *time.Location
	WeekStart           time.Weekday
	ClassDuration       time.Duration
	GoogleClientID      string
	KafkaBrokers        []string
	KafkaTopic          string
	TimetablePath       string
	AdminUsername       string
	AdminPassword       string
	ProjectionCacheSize int
	LogLevel            string
	LogFormat           string
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom parses configuration values using getenv to look up variables.
//
// Optional values fall back to defaults. All missing and malformed variables
// are reported together in a single error.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:            8080,
		SQLitePath:          "gym.db",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		Location:            time.UTC,
		WeekStart:           time.Sunday,
		ClassDuration:       time.Hour,
		KafkaTopic:          "gym.bookings",
		AdminUsername:       "admin",
		ProjectionCacheSize: 64,
		LogLevel:            "info",
		LogFormat:           "json",
	}

	lookup := func(key string) string { return strings.TrimSpace(getenv(key)) }
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := lookup("GYM_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "GYM_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := lookup("GYM_SQLITE_DSN"); path != "" {
		cfg.SQLitePath = path
	}

	if secret := lookup("GYM_TOKEN_SECRET"); secret == "" {
		missing = append(missing, "GYM_TOKEN_SECRET")
	} else if len(secret) < MinTokenSecretLength {
		invalid = append(invalid, "GYM_TOKEN_SECRET")
	} else {
		cfg.TokenSecret = secret
	}

	parseDuration := func(key string, target *time.Duration) {
		value := lookup(key)
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return
		}
		*target = d
	}
	parseDuration("GYM_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL)
	parseDuration("GYM_REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL)
	parseDuration("GYM_CLASS_DURATION", &cfg.ClassDuration)

	if zone := lookup("GYM_TIMEZONE"); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "GYM_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if day := lookup("GYM_WEEK_START"); day != "" {
		weekday, err := recurrence.ParseWeekday(day)
		if err != nil {
			invalid = append(invalid, "GYM_WEEK_START")
		} else {
			cfg.WeekStart = weekday
		}
	}

	cfg.GoogleClientID = lookup("GYM_GOOGLE_CLIENT_ID")

	if brokers := lookup("GYM_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	if topic := lookup("GYM_KAFKA_TOPIC"); topic != "" {
		cfg.KafkaTopic = topic
	}

	cfg.TimetablePath = lookup("GYM_TIMETABLE_PATH")
	if username := lookup("GYM_ADMIN_USERNAME"); username != "" {
		cfg.AdminUsername = username
	}
	cfg.AdminPassword = lookup("GYM_ADMIN_PASSWORD")

	if sizeValue := lookup("GYM_PROJECTION_CACHE_SIZE"); sizeValue != "" {
		size, err := strconv.Atoi(sizeValue)
		if err != nil || size <= 0 {
			invalid = append(invalid, "GYM_PROJECTION_CACHE_SIZE")
		} else {
			cfg.ProjectionCacheSize = size
		}
	}

	if level := lookup("GYM_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := lookup("GYM_LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}
