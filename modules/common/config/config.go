package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	SupabaseBucket         string

	// Gemini API (reference-image 기반 생성 + 편집 + 텍스트 리라이트)
	GeminiAPIKeys   []string
	GeminiModel     string
	GeminiTextModel string

	// Runware API (text-only 생성 + 보조 편집)
	RunwareAPIKey string
	RunwareAPIURL string

	// 생성 파라미터
	GenerationTimeoutSec int
	SceneConcurrency     int
	DefaultArtStyle      string

	// Server
	Port string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	// Gemini API 키 파싱 (쉼표 구분, 429 시 키 로테이션용)
	var geminiKeys []string
	for _, key := range strings.Split(os.Getenv("GEMINI_API_KEYS"), ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			geminiKeys = append(geminiKeys, key)
		}
	}
	if len(geminiKeys) == 0 {
		if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
			geminiKeys = []string{key}
		}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "storybooks"),

		// Gemini API
		GeminiAPIKeys:   geminiKeys,
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiTextModel: getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),

		// Runware API
		RunwareAPIKey: getEnv("RUNWARE_API_KEY", ""),
		RunwareAPIURL: getEnv("RUNWARE_API_URL", "https://api.runware.ai/v1"),

		// 생성 파라미터
		GenerationTimeoutSec: getEnvInt("GENERATION_TIMEOUT_SEC", 180),
		SceneConcurrency:     getEnvInt("SCENE_CONCURRENCY", 3),
		DefaultArtStyle:      getEnv("DEFAULT_ART_STYLE", "children's book illustration, soft watercolor style"),

		// Server
		Port: getEnv("PORT", "8080"),
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s (bucket: %s)", globalConfig.SupabaseURL, globalConfig.SupabaseBucket)
	log.Printf("   Gemini: %s (%d keys)", globalConfig.GeminiModel, len(globalConfig.GeminiAPIKeys))
	log.Printf("   Runware: configured=%v", globalConfig.RunwareAPIKey != "")
	log.Printf("   Generation: timeout=%ds, concurrency=%d", globalConfig.GenerationTimeoutSec, globalConfig.SceneConcurrency)

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	// 이미지 생성 백엔드는 둘 중 하나만 있어도 동작
	// (둘 다 없으면 요청 단위로 provider unavailable 에러 반환)
	if len(c.GeminiAPIKeys) == 0 && c.RunwareAPIKey == "" {
		log.Println("⚠️  No image generation backend configured (GEMINI_API_KEYS / RUNWARE_API_KEY)")
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt - 정수 환경변수 가져오기 (기본값 지원)
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// HasGemini - Gemini 백엔드 설정 여부
func (c *Config) HasGemini() bool {
	return len(c.GeminiAPIKeys) > 0
}

// HasRunware - Runware 백엔드 설정 여부
func (c *Config) HasRunware() bool {
	return c.RunwareAPIKey != ""
}
