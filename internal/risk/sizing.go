package risk

import (
	"math"

	"go.uber.org/zap"

	"channel-breakout/internal/config"
)

// Sizer 根据账户净值计算入场数量。
type Sizer interface {
	Size(equity float64) float64
}

// EquityScaledSizer 按净值线性缩放仓位：
// base_capital 对应 base_position，净值翻倍仓位翻倍。
type EquityScaledSizer struct {
	cfg          config.SizingConfig
	lotPrecision int
	logger       *zap.Logger
}

// NewEquityScaledSizer 创建按净值缩放的仓位计算器。
func NewEquityScaledSizer(cfg config.SizingConfig, lotPrecision int, logger *zap.Logger) *EquityScaledSizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EquityScaledSizer{
		cfg:          cfg,
		lotPrecision: lotPrecision,
		logger:       logger,
	}
}

// Size 返回以基础资产计的入场数量。
// 净值无效时退回基准仓位；结果按 lot 精度取整并不低于最小仓位。
func (s *EquityScaledSizer) Size(equity float64) float64 {
	size := s.cfg.BasePosition
	if equity > 0 {
		size = s.cfg.BasePosition * equity / s.cfg.BaseCapital
	}

	size = roundToPrecision(size, s.lotPrecision)
	if size < s.cfg.MinPosition {
		size = s.cfg.MinPosition
	}

	s.logger.Debug("仓位计算完成",
		zap.Float64("equity", equity),
		zap.Float64("size", size),
	)

	return size
}

func roundToPrecision(v float64, precision int) float64 {
	factor := math.Pow10(precision)
	return math.Round(v*factor) / factor
}
