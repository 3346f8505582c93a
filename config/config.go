package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config 服务端与机器人共用的运行配置，全部来自环境变量
type Config struct {
	// 服务监听与日志
	Addr     string `env:"PLANEBATTLE_ADDR" envDefault:":8080"`
	LogFile  string `env:"LOG_FILE" envDefault:"app.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// 战场规则
	ArenaWidth  int `env:"ARENA_WIDTH" envDefault:"10"`
	ArenaHeight int `env:"ARENA_HEIGHT" envDefault:"10"`
	MaxPlanes   int `env:"MAX_PLANES" envDefault:"3"`
	PlaneLife   int `env:"PLANE_LIFE" envDefault:"3"`

	// 匹配与连接存活
	PendingTTL    time.Duration `env:"PENDING_TTL" envDefault:"0s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`
	PongWait      time.Duration `env:"PONG_WAIT" envDefault:"60s"`
	TurnTimeout   time.Duration `env:"TURN_TIMEOUT" envDefault:"60s"`

	// 可选外部依赖，留空表示不启用
	RedisAddr   string        `env:"REDIS_ADDR"`
	RabbitMQURL string        `env:"RABBITMQ_URL"`
	MatchTTL    time.Duration `env:"MATCH_TTL" envDefault:"2h"`
}

// Load 从环境变量读取配置
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ArenaWidth <= 0 || cfg.ArenaHeight <= 0 {
		return nil, fmt.Errorf("invalid arena size %dx%d", cfg.ArenaWidth, cfg.ArenaHeight)
	}
	if cfg.MaxPlanes <= 0 {
		return nil, fmt.Errorf("invalid max planes %d", cfg.MaxPlanes)
	}
	return cfg, nil
}
