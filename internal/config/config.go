package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/facemark/facemark/internal/constants"
)

type Config struct {
	Database    DatabaseConfig
	SIS         SISConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Attendance  AttendanceConfig
	Voice       VoiceConfig
	Auth        AuthConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    `validate:"gt=0"` // Maximum open connections (default 25)
	MaxIdleConns  int    `validate:"gt=0"` // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the roster HNSW index (optional, rebuilt on startup if empty)
}

// SISConfig points at the school information system's MariaDB.
// The roster sync reads students, courses and enrollments from it.
type SISConfig struct {
	DSN string // MariaDB DSN (e.g. sis:sis@tcp(sis-db:3306)/sis)
}

type EmbeddingConfig struct {
	URL   string `validate:"omitempty,url"` // defaults to http://localhost:8000
	Model string // model name for reference only (defaults to insightface)
	Dim   int    `validate:"gt=0"` // defaults to 512
}

type RecognitionConfig struct {
	Threshold           float64 `validate:"gt=0,lte=1"`  // min cosine similarity to accept a match
	AmbiguityMargin     float64 `validate:"gte=0,lt=1"`  // min gap to the runner-up student
	DetectionConfidence float64 `validate:"gt=0,lte=1"`  // min detection score from the embedding service
	LivenessThreshold   float64 `validate:"gte=0,lte=1"` // min liveness score; 0 disables the check
}

type AttendanceConfig struct {
	LateArrivalMinutes     int `validate:"gte=0"` // grace period before a check-in counts as late
	DuplicateWindowMinutes int `validate:"gte=0"` // repeated camera hits inside this window are ignored
}

type VoiceConfig struct {
	URL string `validate:"omitempty,url"` // TTS service URL; empty disables voice notifications
}

type AuthConfig struct {
	JWTSecret    string // secret for signing API tokens
	TokenMinutes int    `validate:"gt=0"` // token lifetime in minutes (default 12h)
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

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		SIS: SISConfig{
			DSN: os.Getenv("SIS_DATABASE_DSN"),
		},
		Embedding: EmbeddingConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: os.Getenv("EMBEDDING_MODEL"),
			Dim:   envInt("EMBEDDING_DIM", 512),
		},
		Recognition: RecognitionConfig{
			Threshold:           envFloat("RECOGNITION_THRESHOLD", constants.DefaultRecognitionThreshold),
			AmbiguityMargin:     envFloat("RECOGNITION_AMBIGUITY_MARGIN", constants.DefaultAmbiguityMargin),
			DetectionConfidence: envFloat("DETECTION_CONFIDENCE", constants.DefaultDetectionConfidence),
			LivenessThreshold:   envFloat("LIVENESS_THRESHOLD", constants.DefaultLivenessThreshold),
		},
		Attendance: AttendanceConfig{
			LateArrivalMinutes:     envInt("LATE_ARRIVAL_MINUTES", constants.DefaultLateArrivalMinutes),
			DuplicateWindowMinutes: envInt("DUPLICATE_WINDOW_MINUTES", constants.DefaultDuplicateWindowMinutes),
		},
		Voice: VoiceConfig{
			URL: os.Getenv("VOICE_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:    os.Getenv("JWT_SECRET"),
			TokenMinutes: envInt("AUTH_TOKEN_MINUTES", 12*60),
		},
	}
}

// Validate checks the loaded configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
