package exchange

import (
	"context"
	"errors"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrExchangeUnavailable 表示网络或交易所侧瞬态故障，可重试。
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	// ErrOrderRejected 表示交易所明确拒绝了请求，重试同样参数没有意义。
	ErrOrderRejected = errors.New("order rejected")
	// ErrDataUnavailable 表示行情数据暂不可得，当前周期应被放弃。
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrNoPositionToExit 表示在无持仓的情况下请求平仓。
	ErrNoPositionToExit = errors.New("no position to exit")
)

// IsRetryable 判断错误是否属于可重试的瞬态故障。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExchangeUnavailable)
}

// Classify 把底层调用错误归入统一的错误分类。
// 上下文取消原样透传；ccxt 的网络类错误归为 ErrExchangeUnavailable，
// 参数/余额/过滤器类错误归为 ErrOrderRejected。
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.OnMaintenanceErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return joinClass(ErrExchangeUnavailable, err)
		case ccxt.BadRequestErrType,
			ccxt.BadSymbolErrType,
			ccxt.ArgumentsRequiredErrType,
			ccxt.InsufficientFundsErrType,
			ccxt.InvalidOrderErrType,
			ccxt.OrderNotFoundErrType,
			ccxt.PermissionDeniedErrType:
			return joinClass(ErrOrderRejected, err)
		default:
			return joinClass(ErrOrderRejected, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return joinClass(ErrExchangeUnavailable, err)
	}

	return joinClass(ErrExchangeUnavailable, err)
}

func joinClass(class, err error) error {
	if errors.Is(err, class) {
		return err
	}
	return errors.Join(class, err)
}
