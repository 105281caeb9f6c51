package exchange

import "time"

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BalanceSnapshot 描述单一资产在某一时刻的余额。
type BalanceSnapshot struct {
	Asset     string
	Free      float64
	Locked    float64
	Timestamp time.Time
}

// Total 返回可用与冻结余额之和。
func (b BalanceSnapshot) Total() float64 {
	return b.Free + b.Locked
}

// OpenOrder 表示一笔尚未成交的挂单。
type OpenOrder struct {
	ID            string
	ClientOrderID string
	Side          string
	Amount        float64
	Price         float64
}

// OrderReceipt 为一次市价下单的回执。
type OrderReceipt struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Amount        float64
	Filled        float64
	AvgPrice      float64
	Status        string
	Timestamp     time.Time
}
