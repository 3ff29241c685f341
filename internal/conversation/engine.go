package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	xerrors "BondingBot/internal/errors"
	"BondingBot/pkg/logger"
)

var (
	// ErrOperationInProgress 表示该用户已有进行中的操作。
	ErrOperationInProgress = xerrors.New(xerrors.CodeOperationInProgress, "")
	// ErrUnknownOperation 表示请求的操作未注册。
	ErrUnknownOperation = xerrors.New(xerrors.CodeInvalidArgument, "未知操作")
)

// CancelAck 是取消操作后的确认回复。
const CancelAck = "Operation cancelled."

// userState 保存单个用户的会话进度。同一用户的回合经由 mu 串行化；
// 不同用户各自持锁，互不阻塞。removed 标记该状态已从引擎中回收，
// 持有旧指针的调用方必须重新获取。
type userState struct {
	mu        sync.Mutex
	active    bool
	removed   bool
	operation Operation
	stepIndex int
	fields    map[string]string
}

// Engine 是按 (用户, 操作) 组织的多步会话状态机。状态只存在于显式的
// userState 中，由调用链逐层传递，不依赖任何全局可变量。
type Engine struct {
	mu     sync.Mutex
	flows  map[Operation]*Flow
	states map[int64]*userState
	logger *slog.Logger
}

// NewEngine 构造 Engine 并注册流程表。
func NewEngine(flows []*Flow, opts ...EngineOption) *Engine {
	e := &Engine{
		flows:  make(map[Operation]*Flow, len(flows)),
		states: make(map[int64]*userState),
	}
	for _, flow := range flows {
		if flow != nil {
			e.flows[flow.Operation] = flow
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.logger == nil {
		e.logger = logger.Named("conversation")
	}
	return e
}

// EngineOption 定义可选配置。
type EngineOption func(*Engine)

// WithEngineLogger 指定日志输出。
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = log
	}
}

func (e *Engine) state(userID int64) *userState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[userID]
	if !ok {
		state = &userState{}
		e.states[userID] = state
	}
	return state
}

// acquire 返回持锁的用户状态。状态可能在拿到指针后被并发回收，
// 此时重新获取，保证返回的一定是引擎当前注册的状态。
func (e *Engine) acquire(userID int64) *userState {
	for {
		state := e.state(userID)
		state.mu.Lock()
		if !state.removed {
			return state
		}
		state.mu.Unlock()
	}
}

// releaseLocked 回收已回到空闲态的用户状态，states 不随用户数
// 无限增长。调用方持有 state.mu。
func (e *Engine) releaseLocked(userID int64, state *userState) {
	state.removed = true
	e.mu.Lock()
	if e.states[userID] == state {
		delete(e.states, userID)
	}
	e.mu.Unlock()
}

// Enter 让用户进入指定操作。用户已有进行中的操作时返回
// ErrOperationInProgress；零步骤的流程会立即收尾。
func (e *Engine) Enter(ctx context.Context, userID int64, op Operation) ([]string, error) {
	flow, ok := e.flows[op]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知操作: %s", op))
	}

	state := e.acquire(userID)
	defer state.mu.Unlock()

	if state.active {
		return nil, xerrors.New(xerrors.CodeOperationInProgress,
			fmt.Sprintf("操作 %s 尚未结束", state.operation))
	}

	state.active = true
	state.operation = op
	state.stepIndex = 0
	state.fields = make(map[string]string, len(flow.Steps))

	if len(flow.Steps) == 0 {
		return e.finalizeLocked(ctx, userID, state, flow)
	}
	return []string{flow.Steps[0].Prompt}, nil
}

// Submit 处理用户在会话中的一条输入。返回值 handled 为 false 表示该
// 用户当前没有进行中的会话，输入应交由命令层处理。
func (e *Engine) Submit(ctx context.Context, userID int64, text string) (replies []string, handled bool, err error) {
	state := e.acquire(userID)
	defer state.mu.Unlock()

	if !state.active {
		e.releaseLocked(userID, state)
		return nil, false, nil
	}
	flow := e.flows[state.operation]

	if isCancel(text) {
		e.logger.Info("会话已取消",
			slog.Int64("user_id", userID),
			slog.String("operation", string(state.operation)),
			slog.Int("step", state.stepIndex))
		state.reset()
		e.releaseLocked(userID, state)
		return []string{CancelAck}, true, nil
	}

	// 每个回合恰好推进一步：记录当前字段并前进。
	state.fields[flow.Steps[state.stepIndex].Field] = text
	state.stepIndex++

	if state.stepIndex < len(flow.Steps) {
		return []string{flow.Steps[state.stepIndex].Prompt}, true, nil
	}

	replies, err = e.finalizeLocked(ctx, userID, state, flow)
	return replies, true, err
}

// Cancel 终止用户当前会话（若有）。
func (e *Engine) Cancel(userID int64) (string, bool) {
	state := e.acquire(userID)
	defer state.mu.Unlock()

	if !state.active {
		e.releaseLocked(userID, state)
		return "", false
	}
	state.reset()
	e.releaseLocked(userID, state)
	return CancelAck, true
}

// Active 报告用户是否有进行中的会话。只读查询不创建状态。
func (e *Engine) Active(userID int64) bool {
	e.mu.Lock()
	state, ok := e.states[userID]
	e.mu.Unlock()
	if !ok {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.active && !state.removed
}

// finalizeLocked 执行收尾逻辑。无论成功失败，会话状态都会先被重置，
// 不存在停留在收尾步骤的重试；收尾完成后状态随即被回收。
func (e *Engine) finalizeLocked(ctx context.Context, userID int64, state *userState, flow *Flow) ([]string, error) {
	fields := state.fields
	operation := state.operation
	state.reset()
	defer e.releaseLocked(userID, state)

	replies, err := flow.Finalize(ctx, userID, fields)
	if err != nil {
		e.logger.Warn("会话收尾失败",
			slog.Int64("user_id", userID),
			slog.String("operation", string(operation)),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.Any("cause", err))
		return replies, err
	}
	return replies, nil
}

// isCancel 识别取消指令，群聊里 Telegram 会给命令附加 @botname 后缀。
func isCancel(text string) bool {
	command, _, _ := strings.Cut(text, "@")
	return command == CancelToken
}

func (s *userState) reset() {
	s.active = false
	s.operation = ""
	s.stepIndex = 0
	s.fields = nil
}
