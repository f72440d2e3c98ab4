package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage      StorageConfig
	FaceService  FaceServiceConfig
	Video        VideoConfig
	Verification VerificationConfig `yaml:"verification"`
	Registration RegistrationConfig `yaml:"registration"`
	Identify     IdentifyConfig     `yaml:"identify"`
	Concurrency  ConcurrencyConfig
	Log          LogConfig
	Web          WebConfig
}

type StorageConfig struct {
	EmbeddingsDir string // defaults to media/embeddings
	AuditLogPath  string // defaults to logs/attendance_logs.csv
}

type FaceServiceConfig struct {
	URL string // defaults to http://localhost:8000
}

type VideoConfig struct {
	FFmpegPath string // defaults to ffmpeg from PATH
}

type VerificationConfig struct {
	DistanceCutoff  float64 `yaml:"distance_cutoff"`
	VerifyThreshold float64 `yaml:"verify_threshold"`
}

type RegistrationConfig struct {
	MaxFrames         int     `yaml:"max_frames"`
	MinDetectionScore float64 `yaml:"min_detection_score"`
	NotifyURL         string  `yaml:"-"` // optional registration log endpoint
}

type IdentifyConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

type ConcurrencyConfig struct {
	ModelWorkers        int  // concurrent extraction calls, defaults to 1
	ShardComparisonLock bool // one comparison lock per organization bucket
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	var defaults Config
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// embedded file, so this only fails on a broken build
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Storage: StorageConfig{
			EmbeddingsDir: envString("EMBEDDINGS_DIR", "media/embeddings"),
			AuditLogPath:  envString("AUDIT_LOG_PATH", "logs/attendance_logs.csv"),
		},
		FaceService: FaceServiceConfig{
			URL: envString("FACE_SERVICE_URL", "http://localhost:8000"),
		},
		Video: VideoConfig{
			FFmpegPath: envString("FFMPEG_PATH", "ffmpeg"),
		},
		Verification: VerificationConfig{
			DistanceCutoff:  envFloat("DISTANCE_CUTOFF", defaults.Verification.DistanceCutoff),
			VerifyThreshold: envFloat("VERIFY_THRESHOLD", defaults.Verification.VerifyThreshold),
		},
		Registration: RegistrationConfig{
			MaxFrames:         envInt("MAX_REGISTRATION_FRAMES", defaults.Registration.MaxFrames),
			MinDetectionScore: envFloat("MIN_DETECTION_SCORE", defaults.Registration.MinDetectionScore),
			NotifyURL:         os.Getenv("REGISTRATION_LOG_URL"),
		},
		Identify: IdentifyConfig{
			DefaultLimit: envInt("IDENTIFY_LIMIT", defaults.Identify.DefaultLimit),
		},
		Concurrency: ConcurrencyConfig{
			ModelWorkers:        envInt("MODEL_WORKERS", 1),
			ShardComparisonLock: envBool("COMPARISON_LOCK_SHARDED", false),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", constants.DefaultWebPort),
			Host:           envString("WEB_HOST", constants.DefaultWebHost),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
