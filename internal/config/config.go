package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// Config 应用配置
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string
	DeviceID  string

	// ScoringConfigPath 评分规则 YAML 文件，为空时使用内置默认值
	ScoringConfigPath string

	// 同步配置，SyncEndpoint 为空时不同步
	SyncEndpoint    string
	SyncMaxAttempts int
	SyncInterval    time.Duration
	SyncTimeout     time.Duration
	SyncPrune       bool

	// 记录器配置
	MinMovementM float64
	MaxAccuracyM float64
	StaleAfter   time.Duration

	// FixRateLimit 每个设备每分钟最多上报的定位请求数
	FixRateLimit int
}

// Load 加载配置
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", ":8080"),
		DBPath:            getEnv("DB_PATH", "./data/trackscore.db"),
		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		DeviceID:          getEnv("DEVICE_ID", hostname()),
		ScoringConfigPath: os.Getenv("SCORING_CONFIG"),
		SyncEndpoint:      os.Getenv("SYNC_ENDPOINT"),
		SyncMaxAttempts:   getEnvInt("SYNC_MAX_ATTEMPTS", 3),
		SyncInterval:      getEnvDuration("SYNC_INTERVAL", time.Minute),
		SyncTimeout:       getEnvDuration("SYNC_TIMEOUT", 15*time.Second),
		SyncPrune:         getEnvBool("SYNC_PRUNE", true),
		MinMovementM:      getEnvFloat("MIN_MOVEMENT_M", 10),
		MaxAccuracyM:      getEnvFloat("MAX_ACCURACY_M", 0),
		StaleAfter:        getEnvDuration("STALE_AFTER", 0),
		FixRateLimit:      getEnvInt("FIX_RATE_LIMIT", 120),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown-device"
	}
	return name
}

// Scoring 评分规则文件
type Scoring struct {
	Config        models.ScoringConfig `yaml:",inline"`
	ThemeKeywords []string             `yaml:"themeKeywords"`
}

// ErrInvalidScoring is returned for scoring files with unusable weights
var ErrInvalidScoring = errors.New("invalid scoring config")

// DefaultScoring returns the built-in scoring rules
func DefaultScoring() Scoring {
	return Scoring{
		Config: models.ScoringConfig{
			PointsPerKm:            2.0,
			MinDistanceKm:          3.0,
			RequireAtLeastOnePlace: false,
			PlaceTypePoints: map[string]float64{
				models.PlaceTypePeak:  2.0,
				models.PlaceTypeTower: 1.5,
				models.PlaceTypeTree:  1.0,
				models.PlaceTypeOther: 0.5,
			},
		},
		ThemeKeywords: []string{"autumn", "foliage", "harvest"},
	}
}

// LoadScoring 加载评分规则。path 为空或文件不存在时返回默认规则
func LoadScoring(path string) (Scoring, error) {
	if path == "" {
		return DefaultScoring(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultScoring(), nil
	}
	if err != nil {
		return Scoring{}, fmt.Errorf("failed to read scoring config: %w", err)
	}

	return ParseScoring(data)
}

// ParseScoring decodes a scoring document. Keys absent from the document
// keep their default values.
func ParseScoring(data []byte) (Scoring, error) {
	s := DefaultScoring()
	s.Config.PlaceTypePoints = nil
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scoring{}, fmt.Errorf("failed to parse scoring config: %w", err)
	}
	if s.Config.PlaceTypePoints == nil {
		s.Config.PlaceTypePoints = DefaultScoring().Config.PlaceTypePoints
	}

	if err := s.Validate(); err != nil {
		return Scoring{}, err
	}
	return s.Normalized(), nil
}

// Validate rejects negative or non-finite weights
func (s Scoring) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidScoring, name, v)
		}
		return nil
	}

	if err := check("pointsPerKm", s.Config.PointsPerKm); err != nil {
		return err
	}
	if err := check("minDistanceKm", s.Config.MinDistanceKm); err != nil {
		return err
	}
	for t, v := range s.Config.PlaceTypePoints {
		if err := check("placeTypePoints."+t, v); err != nil {
			return err
		}
	}
	return nil
}

// Normalized upper-cases place types and drops blank keywords
func (s Scoring) Normalized() Scoring {
	points := make(map[string]float64, len(s.Config.PlaceTypePoints))
	for t, v := range s.Config.PlaceTypePoints {
		points[strings.ToUpper(strings.TrimSpace(t))] = v
	}
	s.Config.PlaceTypePoints = points

	keywords := make([]string, 0, len(s.ThemeKeywords))
	for _, k := range s.ThemeKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	s.ThemeKeywords = keywords
	return s
}
