package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EvalQueueName      string
	EvalLockKeyPrefix  string
	EvalLockTTLSeconds int

	// Executor pool sizing and limits.
	ExecParallelism   int
	ExecQueueDepth    int
	ExecScratchDir    string
	LanguageCatalog   string
	DefaultTimeMs     int
	DefaultMemoryKb   int
	OutputLimitBytes  int
	CompileTimeMs     int
	EvalWaitSeconds   int
	TestGenEndpoint   string
	TestGenTimeoutSec int
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		JWTKey:             []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:             time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "user"),
		DBPassword:         getEnv("DB_PASSWORD", "password"),
		DBName:             getEnv("DB_NAME", "codequest_db"),
		DBSslMode:          getEnv("DB_SSLMODE", "disable"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		EvalQueueName:      getEnv("EVAL_QUEUE_NAME", "evaluation_queue"),
		EvalLockKeyPrefix:  getEnv("EVAL_LOCK_KEY_PREFIX", "eval_lock:"),
		EvalLockTTLSeconds: getEnvAsInt("EVAL_LOCK_TTL_SECONDS", 300),
		ExecParallelism:    getEnvAsInt("EXEC_PARALLELISM", runtime.NumCPU()),
		ExecQueueDepth:     getEnvAsInt("EXEC_QUEUE_DEPTH", 64),
		ExecScratchDir:     getEnv("EXEC_SCRATCH_DIR", os.TempDir()),
		LanguageCatalog:    getEnv("LANGUAGE_CATALOG", "languages.yaml"),
		DefaultTimeMs:      getEnvAsInt("DEFAULT_RUNTIME_LIMIT_MS", 5000),
		DefaultMemoryKb:    getEnvAsInt("DEFAULT_MEMORY_LIMIT_KB", 262144),
		OutputLimitBytes:   getEnvAsInt("OUTPUT_LIMIT_BYTES", 1<<20),
		CompileTimeMs:      getEnvAsInt("COMPILE_TIME_LIMIT_MS", 20000),
		EvalWaitSeconds:    getEnvAsInt("EVAL_WAIT_SECONDS", 120),
		TestGenEndpoint:    getEnv("TESTGEN_ENDPOINT", ""),
		TestGenTimeoutSec:  getEnvAsInt("TESTGEN_TIMEOUT_SECONDS", 5),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
