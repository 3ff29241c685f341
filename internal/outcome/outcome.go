package outcome

import "context"

// Record 是一次交易提交的流水记录，供下游对账与统计消费。
type Record struct {
	ID           string `json:"id"`
	UserID       int64  `json:"user_id"`
	Operation    string `json:"operation"`
	Status       string `json:"status"`
	TxHash       string `json:"tx_hash,omitempty"`
	TokenAddress string `json:"token_address,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// Publisher 发布交易流水。发布失败只记日志，不影响用户侧结果。
type Publisher interface {
	Publish(ctx context.Context, record Record) error
	Close() error
}
