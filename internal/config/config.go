// Package config loads the environment-variable surface listed under
// SPEC_FULL.md's External Interfaces, following the teacher's internal/config/config.go shape: a
// loadFromEnv() free function feeding a small TTL-cached process-wide
// singleton.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config is the process-wide configuration surface.
type Config struct {
	TelegramBotToken      string
	TelegramOwnerUserID   int64
	DataDir               string
	ProjectsConfigPath    string
	DashboardPort         int
	DashboardBindHost     string
	DashboardBasicAuthUsr string
	DashboardBasicAuthPwd string
	KillSwitchDisableRuns bool
	MaxUploadBytes        int64
	LogLevel              string
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

// LoadConfig reads the environment unconditionally and refreshes the cache.
func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg, cachedAt, cacheValid = cfg, nowFunc(), true
	cacheMu.Unlock()
	return cfg
}

// GetConfig returns the cached config, reloading from the environment if
// the cache has expired.
func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg, cachedAt, cacheValid = cfg, now, true
	cacheMu.Unlock()
	out := cfg
	return &out
}

func loadFromEnv() Config {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	projectsPath := os.Getenv("PROJECTS_CONFIG_PATH")
	if projectsPath == "" {
		projectsPath = "./config/projects.json"
	}
	dashboardPort := atoiOrDefault(os.Getenv("DASHBOARD_PORT"), 4312)
	dashboardHost := os.Getenv("DASHBOARD_BIND_HOST")
	if dashboardHost == "" {
		dashboardHost = "127.0.0.1"
	}
	maxUpload := atoi64OrDefault(os.Getenv("MAX_UPLOAD_BYTES"), 26214400)
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramOwnerUserID:   atoi64OrDefault(os.Getenv("TELEGRAM_OWNER_USER_ID"), 0),
		DataDir:               dataDir,
		ProjectsConfigPath:    projectsPath,
		DashboardPort:         dashboardPort,
		DashboardBindHost:     dashboardHost,
		DashboardBasicAuthUsr: os.Getenv("DASHBOARD_BASIC_AUTH_USER"),
		DashboardBasicAuthPwd: os.Getenv("DASHBOARD_BASIC_AUTH_PASS"),
		KillSwitchDisableRuns: os.Getenv("KILL_SWITCH_DISABLE_RUNS") == "1" || strings.EqualFold(os.Getenv("KILL_SWITCH_DISABLE_RUNS"), "true"),
		MaxUploadBytes:        maxUpload,
		LogLevel:              logLevel,
	}
}

func atoiOrDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func atoi64OrDefault(v string, fallback int64) int64 {
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
