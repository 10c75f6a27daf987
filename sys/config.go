package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// --- Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	SoundsDir    string
	MirrorDir    string
	OwnerIDs     []string
	SystemUsers  []string
	Silent       bool

	// Playback tunables. Observed deployments ran with several different
	// values for these, so they are configuration rather than constants.
	PlaybackRetries     int
	PlaybackStabilize   time.Duration
	ReadyPollAttempts   int
	ReadyPollInterval   time.Duration
	MirrorFetchTimeout  time.Duration
	MirrorProbeTimeout  time.Duration
	HealthCheckInterval time.Duration
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	soundsDir := os.Getenv("SOUNDS_DIR")
	if soundsDir == "" {
		soundsDir = "sounds"
	}

	mirrorDir := os.Getenv("MIRROR_DIR")
	if mirrorDir == "" {
		mirrorDir = "mirror"
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv("GUILD_ID"),
		DatabasePath: dbPath,
		SoundsDir:    soundsDir,
		MirrorDir:    mirrorDir,
		OwnerIDs:     splitIDList(os.Getenv("OWNER_IDS")),
		SystemUsers:  splitIDList(os.Getenv("SYSTEM_USERS")),
		Silent:       silent,

		PlaybackRetries:     envInt("PLAYBACK_RETRIES", 3),
		PlaybackStabilize:   time.Duration(envInt("PLAYBACK_STABILIZE_MS", 300)) * time.Millisecond,
		ReadyPollAttempts:   envInt("READY_POLL_ATTEMPTS", 10),
		ReadyPollInterval:   time.Duration(envInt("READY_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		MirrorFetchTimeout:  time.Duration(envInt("MIRROR_FETCH_TIMEOUT_S", 20)) * time.Second,
		MirrorProbeTimeout:  time.Duration(envInt("MIRROR_PROBE_TIMEOUT_S", 5)) * time.Second,
		HealthCheckInterval: time.Duration(envInt("HEALTH_CHECK_INTERVAL_S", 20)) * time.Second,
	}

	if len(cfg.SystemUsers) == 0 {
		cfg.SystemUsers = []string{"system"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.PlaybackRetries < 1 {
		return fmt.Errorf("PLAYBACK_RETRIES must be at least 1")
	}
	if c.ReadyPollAttempts < 1 {
		return fmt.Errorf("READY_POLL_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsSystemUser reports whether plays by this identity are excluded from stats.
func (c *Config) IsSystemUser(user string) bool {
	for _, s := range c.SystemUsers {
		if strings.EqualFold(s, user) {
			return true
		}
	}
	return false
}

// IsOwner reports whether the given user ID may manage the catalog.
func (c *Config) IsOwner(userID string) bool {
	for _, id := range c.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func splitIDList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
