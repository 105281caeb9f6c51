package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Sizing   SizingConfig   `mapstructure:"sizing"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name            string      `mapstructure:"name"`
	APIKey          string      `mapstructure:"api_key"`
	APISecret       string      `mapstructure:"api_secret"`
	UseSandbox      bool        `mapstructure:"use_sandbox"`
	RateLimitPerSec float64     `mapstructure:"rate_limit_per_sec"`
	Retry           RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制订单通道的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// StrategyConfig 描述通道突破策略参数。
type StrategyConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
	Length   int    `mapstructure:"length"`
}

// TradingConfig 控制决策循环与下单细节。
type TradingConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	DustThreshold float64       `mapstructure:"dust_threshold"`
	LotPrecision  int           `mapstructure:"lot_precision"`
	BaseAsset     string        `mapstructure:"base_asset"`
	QuoteAsset    string        `mapstructure:"quote_asset"`
}

// SizingConfig 控制按账户净值缩放的仓位计算。
type SizingConfig struct {
	BaseCapital  float64 `mapstructure:"base_capital"`
	BasePosition float64 `mapstructure:"base_position"`
	MinPosition  float64 `mapstructure:"min_position"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.RateLimitPerSec <= 0 {
		err = multierr.Append(err, errors.New("exchange.rate_limit_per_sec 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Strategy.Symbol == "" {
		err = multierr.Append(err, errors.New("strategy.symbol 不能为空"))
	}
	if c.Strategy.Interval == "" {
		err = multierr.Append(err, errors.New("strategy.interval 不能为空"))
	}
	if c.Strategy.Length < 1 {
		err = multierr.Append(err, errors.New("strategy.length 必须不小于1"))
	}
	if c.Trading.CycleInterval <= 0 {
		err = multierr.Append(err, errors.New("trading.cycle_interval 必须大于0"))
	}
	if c.Trading.CycleTimeout <= 0 {
		err = multierr.Append(err, errors.New("trading.cycle_timeout 必须大于0"))
	}
	if c.Trading.SettleDelay < 0 {
		err = multierr.Append(err, errors.New("trading.settle_delay 不能为负"))
	}
	if c.Trading.DustThreshold < 0 {
		err = multierr.Append(err, errors.New("trading.dust_threshold 不能为负"))
	}
	if c.Trading.LotPrecision < 0 {
		err = multierr.Append(err, errors.New("trading.lot_precision 不能为负"))
	}
	if c.Trading.BaseAsset == "" {
		err = multierr.Append(err, errors.New("trading.base_asset 不能为空"))
	}
	if c.Trading.QuoteAsset == "" {
		err = multierr.Append(err, errors.New("trading.quote_asset 不能为空"))
	}
	if c.Sizing.BaseCapital <= 0 {
		err = multierr.Append(err, errors.New("sizing.base_capital 必须大于0"))
	}
	if c.Sizing.BasePosition <= 0 {
		err = multierr.Append(err, errors.New("sizing.base_position 必须大于0"))
	}
	if c.Sizing.MinPosition < 0 {
		err = multierr.Append(err, errors.New("sizing.min_position 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
