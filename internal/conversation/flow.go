package conversation

import "context"

// Operation 是封闭的操作枚举。每个操作对应一张固定的步骤表，
// 不存在运行期注册的任意流程。
type Operation string

const (
	OpCreateToken    Operation = "create-token"
	OpBuyToken       Operation = "buy"
	OpSellToken      Operation = "sell"
	OpCheckBalance   Operation = "check-balance"
	OpImportWallet   Operation = "import-wallet"
	OpGenerateWallet Operation = "generate-wallet"
	OpShowWallet     Operation = "show-wallet"
)

// CancelToken 是保留的取消指令。在任意步骤输入它都会立即终止会话。
const CancelToken = "/cancel"

// Step 描述向导流程中的一步：字段名与发给用户的提示语。
type Step struct {
	Field  string
	Prompt string
}

// Finalizer 在全部字段收集完成后执行。返回发给用户的消息；无论成功
// 与否，执行完毕后会话一律回到空闲态。引擎不做字段级校验，非法输入
// 由 Finalizer 报错。
type Finalizer func(ctx context.Context, userID int64, fields map[string]string) ([]string, error)

// Flow 将一个操作绑定到它的步骤表与收尾逻辑。Steps 为空的流程在进入
// 时立即收尾（例如查看钱包地址）。
type Flow struct {
	Operation Operation
	Steps     []Step
	Finalize  Finalizer
}
