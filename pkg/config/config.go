package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const MinScanIntervalSeconds = 5

var (
	ErrInvalidThresholds = errors.New("thresholds must satisfy 0 <= warn <= delete <= escalate")
	ErrMissingToken      = errors.New("discord token is required")
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so Discord snowflakes can be written as "123" or 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// snowflakes overflow float64, so keep numbers as their literal text
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, n.String())
			continue
		}
		result = append(result, strings.TrimSpace(string(item)))
	}
	*f = result
	return nil
}

type Config struct {
	Discord    DiscordConfig    `json:"discord"`
	Moderation ModerationConfig `json:"moderation"`
	Classifier ClassifierConfig `json:"classifier"`
	Memory     MemoryConfig     `json:"memory"`
	Normalizer NormalizerConfig `json:"normalizer"`
	Audit      AuditConfig      `json:"audit"`
	Gateway    GatewayConfig    `json:"gateway"`
	Log        LogConfig        `json:"log"`
	mu         sync.RWMutex
}

type DiscordConfig struct {
	Token               string              `json:"token" env:"DOTMOD_DISCORD_TOKEN"`
	GuildID             string              `json:"guild_id" env:"DOTMOD_DISCORD_GUILD_ID"`
	StaffRoleID         string              `json:"staff_role_id" env:"DOTMOD_DISCORD_STAFF_ROLE_ID"`
	ModLogChannelID     string              `json:"mod_log_channel_id" env:"DOTMOD_DISCORD_MOD_LOG_CHANNEL_ID"`
	EscalationChannelID string              `json:"escalation_channel_id" env:"DOTMOD_DISCORD_ESCALATION_CHANNEL_ID"`
	ScanChannelIDs      FlexibleStringSlice `json:"scan_channel_ids" env:"DOTMOD_DISCORD_SCAN_CHANNEL_IDS" envSeparator:","`
	ScanIntervalSeconds int                 `json:"scan_interval_seconds" env:"DOTMOD_DISCORD_SCAN_INTERVAL_SECONDS"`
}

// Thresholds are inclusive lower bounds of each action tier.
type Thresholds struct {
	Warn     int `json:"warn" env:"DOTMOD_MODERATION_WARN_THRESHOLD"`
	Delete   int `json:"delete" env:"DOTMOD_MODERATION_DELETE_THRESHOLD"`
	Escalate int `json:"escalate" env:"DOTMOD_MODERATION_ESCALATE_THRESHOLD"`
}

type ModerationConfig struct {
	Keywords []string `json:"keywords" env:"DOTMOD_MODERATION_KEYWORDS" envSeparator:","`
	// BlockedPatterns are raw regular expressions. The env form separates
	// them with ";;" because expressions routinely contain commas.
	BlockedPatterns []string `json:"blocked_patterns" env:"DOTMOD_MODERATION_BLOCKED_PATTERNS" envSeparator:";;"`
	// BlockedPhrases are literal phrases compiled with look-alike tolerance.
	BlockedPhrases     []string       `json:"blocked_phrases" env:"DOTMOD_MODERATION_BLOCKED_PHRASES" envSeparator:","`
	ExemptLinkPatterns []string       `json:"exempt_link_patterns" env:"DOTMOD_MODERATION_EXEMPT_LINK_PATTERNS" envSeparator:";;"`
	Thresholds         Thresholds     `json:"thresholds"`
	ChannelWeights     map[string]int `json:"channel_weights" env:"DOTMOD_MODERATION_CHANNEL_WEIGHTS" envSeparator:"," envKeyValSeparator:":"`
	RecentContextLimit int            `json:"recent_context_limit" env:"DOTMOD_MODERATION_RECENT_CONTEXT_LIMIT"`
}

type ClassifierConfig struct {
	Enabled          bool   `json:"enabled" env:"DOTMOD_CLASSIFIER_ENABLED"`
	Endpoint         string `json:"endpoint" env:"DOTMOD_CLASSIFIER_ENDPOINT"`
	APIKey           string `json:"api_key,omitempty" env:"DOTMOD_CLASSIFIER_API_KEY"`
	Proxy            string `json:"proxy,omitempty" env:"DOTMOD_CLASSIFIER_PROXY"`
	Debug            bool   `json:"debug" env:"DOTMOD_CLASSIFIER_DEBUG"`
	ConnectTimeoutMS int    `json:"connect_timeout_ms" env:"DOTMOD_CLASSIFIER_CONNECT_TIMEOUT_MS"`
	RequestTimeoutMS int    `json:"request_timeout_ms" env:"DOTMOD_CLASSIFIER_REQUEST_TIMEOUT_MS"`
	CacheSize        int    `json:"cache_size" env:"DOTMOD_CLASSIFIER_CACHE_SIZE"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds" env:"DOTMOD_CLASSIFIER_CACHE_TTL_SECONDS"`
}

type MemoryConfig struct {
	Path            string `json:"path" env:"DOTMOD_MEMORY_PATH"`
	RetentionDays   int    `json:"retention_days" env:"DOTMOD_MEMORY_RETENTION_DAYS"`
	MaxRecentPerKey int    `json:"max_recent_per_key" env:"DOTMOD_MEMORY_MAX_RECENT_PER_KEY"`
	SweepSchedule   string `json:"sweep_schedule" env:"DOTMOD_MEMORY_SWEEP_SCHEDULE"`
}

type NormalizerConfig struct {
	Morphology   string `json:"morphology" env:"DOTMOD_NORMALIZER_MORPHOLOGY"`
	SynonymsPath string `json:"synonyms_path" env:"DOTMOD_NORMALIZER_SYNONYMS_PATH"`
}

type AuditConfig struct {
	Enabled       bool   `json:"enabled" env:"DOTMOD_AUDIT_ENABLED"`
	Path          string `json:"path" env:"DOTMOD_AUDIT_PATH"`
	RetentionDays int    `json:"retention_days" env:"DOTMOD_AUDIT_RETENTION_DAYS"`
	SweepSchedule string `json:"sweep_schedule" env:"DOTMOD_AUDIT_SWEEP_SCHEDULE"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"DOTMOD_GATEWAY_HOST"`
	Port int    `json:"port" env:"DOTMOD_GATEWAY_PORT"`
}

type LogConfig struct {
	Level string `json:"level" env:"DOTMOD_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			ScanChannelIDs:      FlexibleStringSlice{},
			ScanIntervalSeconds: MinScanIntervalSeconds,
		},
		Moderation: ModerationConfig{
			Keywords:           DefaultKeywords(),
			BlockedPatterns:    DefaultBlockedPatterns(),
			BlockedPhrases:     []string{},
			ExemptLinkPatterns: DefaultExemptLinkPatterns(),
			Thresholds: Thresholds{
				Warn:     20,
				Delete:   50,
				Escalate: 80,
			},
			ChannelWeights:     map[string]int{},
			RecentContextLimit: 5,
		},
		Classifier: ClassifierConfig{
			Enabled:          false,
			ConnectTimeoutMS: 2000,
			RequestTimeoutMS: 5000,
			CacheSize:        512,
			CacheTTLSeconds:  300,
		},
		Memory: MemoryConfig{
			Path:            "~/.dotmod/word-memory.jsonl",
			RetentionDays:   30,
			MaxRecentPerKey: 50,
			SweepSchedule:   "17 * * * *",
		},
		Normalizer: NormalizerConfig{
			Morphology: "stem",
		},
		Audit: AuditConfig{
			Enabled:       true,
			Path:          "~/.dotmod/audit.db",
			RetentionDays: 90,
			SweepSchedule: "@daily",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig layers the JSON file at path over DefaultConfig, then the
// process environment (after a .env file next to the working directory, if
// any) over that.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.applyFloors()
	return cfg, nil
}

// LoadDotEnv populates unset environment variables from a dotenv file. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyFloors() {
	if c.Discord.ScanIntervalSeconds < MinScanIntervalSeconds {
		c.Discord.ScanIntervalSeconds = MinScanIntervalSeconds
	}
	c.Discord.ScanChannelIDs = dedupe(c.Discord.ScanChannelIDs)
	c.Moderation.Keywords = trimNonEmpty(c.Moderation.Keywords)
	if len(c.Moderation.Keywords) == 0 {
		c.Moderation.Keywords = DefaultKeywords()
	}
}

// Validate reports configuration the moderator cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	t := c.Moderation.Thresholds
	if t.Warn < 0 || t.Warn > t.Delete || t.Delete > t.Escalate {
		errs = append(errs, fmt.Errorf("%w (got warn=%d delete=%d escalate=%d)", ErrInvalidThresholds, t.Warn, t.Delete, t.Escalate))
	}
	if c.Memory.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("memory.retention_days must not be negative"))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("audit.retention_days must not be negative"))
	}
	for id, w := range c.Moderation.ChannelWeights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("channel weight for %s must not be negative", id))
		}
	}
	return errors.Join(errs...)
}

// ChannelRiskScore returns the configured weight of a channel, 0 if unset.
func (c *Config) ChannelRiskScore(channelID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Moderation.ChannelWeights[channelID]
}

func (c *Config) ScanInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	secs := c.Discord.ScanIntervalSeconds
	if secs < MinScanIntervalSeconds {
		secs = MinScanIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c *Config) MemoryRetention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Memory.RetentionDays) * 24 * time.Hour
}

func (c *Config) AuditRetention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

func (c *Config) MemoryPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Memory.Path)
}

func (c *Config) AuditPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Audit.Path)
}

func (c *Config) GatewayAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(in []string) FlexibleStringSlice {
	seen := make(map[string]struct{}, len(in))
	out := make(FlexibleStringSlice, 0, len(in))
	for _, s := range trimNonEmpty(in) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
