package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NodeConfig describes one remote audio node the client should maintain
// a connection to.
type NodeConfig struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Secure   bool   `json:"secure"`
}

// Validate 校验节点条目的必填字段
func (nc NodeConfig) Validate() error {
	if nc.ID == "" || nc.Host == "" || nc.Port == 0 {
		return fmt.Errorf("node %q is missing id, host or port", nc.ID)
	}
	return nil
}

// Config stores the application configuration.
type Config struct {
	// 客户端标识
	UserID     string // Bot 用户ID，节点握手必须携带
	ClientName string

	// 节点配置
	NodesFile string       // JSON 节点列表文件，支持热更新
	Nodes     []NodeConfig // 启动时解析出的节点列表

	// 重连与恢复
	ReconnectDelay time.Duration
	ReconnectTries int // -1 表示无限重试
	ResumeEnabled  bool
	ResumeTimeout  time.Duration

	// 自动续播
	PlayNextOnEnd   bool   // 曲目结束后自动播放队列下一首
	AutoplayEnabled bool
	AutoplaySeed    string // 兜底的电台种子曲目标识

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL配置（播放历史）
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	HistoryEnabled bool

	// 管理接口
	AdminAddr         string
	AdminPasswordHash string // bcrypt 哈希
	JWTSecret         string

	// 日志
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		UserID:     os.Getenv("BOT_USER_ID"),
		ClientName: getEnv("CLIENT_NAME", "Bt1QLink/1.0"),

		NodesFile: getEnv("NODES_FILE", ""),

		ReconnectDelay: time.Duration(getEnvInt("RECONNECT_DELAY_MS", 5000)) * time.Millisecond,
		ReconnectTries: getEnvInt("RECONNECT_TRIES", 10),
		ResumeEnabled:  getEnvBool("RESUME_ENABLED", true),
		ResumeTimeout:  time.Duration(getEnvInt("RESUME_TIMEOUT_SEC", 60)) * time.Second,

		PlayNextOnEnd:   getEnvBool("PLAY_NEXT_ON_END", true),
		AutoplayEnabled: getEnvBool("AUTOPLAY_ENABLED", false),
		AutoplaySeed:    getEnv("AUTOPLAY_SEED", "dQw4w9WgXcQ"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBHost:         getEnv("DB_HOST", "127.0.0.1"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:         getEnv("DB_NAME", "qlink"),
		HistoryEnabled: getEnvBool("HISTORY_ENABLED", false),

		AdminAddr:         getEnv("ADMIN_ADDR", ":8090"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		JWTSecret:         getEnv("JWT_SECRET", "change-me"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}

	if cfg.NodesFile != "" {
		nodes, err := LoadNodesFile(cfg.NodesFile)
		if err != nil {
			log.Printf("Failed to load nodes file %s: %v", cfg.NodesFile, err)
		} else {
			cfg.Nodes = nodes
		}
	}

	// 未提供节点文件时回退到单节点环境变量
	if len(cfg.Nodes) == 0 {
		if host := os.Getenv("NODE_HOST"); host != "" {
			cfg.Nodes = append(cfg.Nodes, NodeConfig{
				ID:       getEnv("NODE_ID", "main"),
				Host:     host,
				Port:     getEnvInt("NODE_PORT", 2333),
				Password: os.Getenv("NODE_PASSWORD"),
				Secure:   getEnvBool("NODE_SECURE", false),
			})
		}
	}

	return cfg
}

// LoadNodesFile parses a JSON array of node definitions from disk.
func LoadNodesFile(path string) ([]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file: %w", err)
	}

	var nodes []NodeConfig
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse nodes file: %w", err)
	}

	for i, n := range nodes {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("node entry %d: %w", i, err)
		}
	}
	return nodes, nil
}
