package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ListenAddr  string
	LogLevel    string

	DatabaseURL      string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBAcquireTimeout time.Duration

	JWTSecret []byte
	JWTTTL    time.Duration

	AdminPassword    string
	RegistrationCode string

	// requests per second allowed on /api/auth per client ip
	AuthRateLimit float64

	BackupScript  string
	BackupDir     string
	LogsDir       string
	BackupTimeout time.Duration

	KafkaBrokers []string
	AuditTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	CORSOrigins []string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found: %v. Using system environment variables", err)
	}
	return FromEnv()
}

func FromEnv() *Config {
	return &Config{
		ServiceName: EnvDefault("SERVICE_NAME", "hospital_desk"),
		ListenAddr:  EnvDefault("LISTEN_ADDR", ":"+EnvDefault("PORT", "3001")),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBHost:           EnvDefault("DB_HOST", "localhost"),
		DBPort:           EnvDefault("DB_PORT", "5432"),
		DBUser:           EnvDefault("DB_USER", "postgres"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           EnvDefault("DB_NAME", "hospital_db"),
		DBMaxOpenConns:   EnvIntDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:   EnvIntDefault("DB_MAX_IDLE_CONNS", 5),
		DBAcquireTimeout: EnvDurationDefault("DB_ACQUIRE_TIMEOUT", 5*time.Second),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		JWTTTL:    EnvDurationDefault("JWT_TTL", time.Hour),

		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		RegistrationCode: os.Getenv("REGISTRATION_CODE"),

		AuthRateLimit: EnvFloatDefault("AUTH_RATE_LIMIT", 5),

		BackupScript:  EnvDefault("BACKUP_SCRIPT", "scripts/backup.sh"),
		BackupDir:     EnvDefault("BACKUP_DIR", "backups"),
		LogsDir:       EnvDefault("LOGS_DIR", "logs"),
		BackupTimeout: EnvDurationDefault("BACKUP_TIMEOUT", 30*time.Minute),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:   EnvDefault("AUDIT_TOPIC", "audit_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "patients"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    EnvDefault("S3_REGION", "us-east-1"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Prefix:    EnvDefault("S3_PREFIX", "backups/"),

		CORSOrigins: CSV(os.Getenv("CORS_ORIGINS")),
	}
}

// DSN returns DATABASE_URL or builds one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// BackupEnv is the database part of the backup script environment. It
// describes the same database DSN() connects to.
func (c *Config) BackupEnv() []string {
	host, port, user, password, name := c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName
	if c.DatabaseURL != "" {
		if pc, err := pgconn.ParseConfig(c.DatabaseURL); err == nil {
			host, port = pc.Host, strconv.Itoa(int(pc.Port))
			user, password, name = pc.User, pc.Password, pc.Database
		}
	}
	return []string{
		"DB_HOST=" + host,
		"DB_PORT=" + port,
		"DB_USER=" + user,
		"DB_PASSWORD=" + password,
		"DB_NAME=" + name,
		"BACKUP_DIR=" + c.BackupDir,
	}
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.DatabaseURL != "" {
		if _, err := pgconn.ParseConfig(c.DatabaseURL); err != nil {
			return fmt.Errorf("DATABASE_URL: %w", err)
		}
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.DBMaxOpenConns)
	}
	return nil
}
