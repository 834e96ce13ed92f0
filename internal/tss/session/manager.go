package session

import (
    "context"
    "errors"
    "sort"
    "sync"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
    "github.com/zmlAEQ/aequa-tdkg/internal/tss/tpke"
    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// Phase 表示解密轮次的阶段。
type Phase string

const (
    PhaseInit    Phase = "init"
    PhaseGather  Phase = "gather"
    PhaseCombine Phase = "combine"
    PhaseDone    Phase = "done"
)

var (
    ErrTimedOut = errors.New("decryption round timed out")
    ErrNotReady = errors.New("decryption round not in combine phase")
    ErrClosed   = errors.New("decryption round already finished")
)

// Round 是 Manager 驱动的一次门限解密；*tpke.Round 实现该接口。
type Round interface {
    Threshold() int
    Verify(ds *tpke.DecryptionShare) error
    Combine(ctx context.Context, shares []*tpke.DecryptionShare) ([]byte, error)
}

// Config 为轮次超时配置。
type Config struct {
    GatherTimeout  time.Duration // 从 Init 进入 Gather 后的超时
    CombineTimeout time.Duration // 进入 Combine 后等待 Finalize 的超时
}

func defaultConfig(c Config) Config {
    if c.GatherTimeout <= 0 {
        c.GatherTimeout = 2 * time.Second
    }
    if c.CombineTimeout <= 0 {
        c.CombineTimeout = 2 * time.Second
    }
    return c
}

// Manager 收集解密份额：校验、按验证者去重，达到 T+1 后进入 Combine。
type Manager struct {
    mu        sync.Mutex
    cfg       Config
    round     Round
    phase     Phase
    startedAt time.Time
    shares    map[int]*tpke.DecryptionShare
    rejected  int
    timedOut  bool

    // 关闭控制
    ctx    context.Context
    cancel context.CancelFunc
}

// NewManager 构造管理器（未启动）。
func NewManager(round Round, cfg Config) *Manager {
    cfg = defaultConfig(cfg)
    return &Manager{cfg: cfg, round: round, phase: PhaseInit, shares: make(map[int]*tpke.DecryptionShare)}
}

// Start 启动超时监视。
func (m *Manager) Start(ctx context.Context) {
    m.mu.Lock()
    if m.ctx != nil { m.mu.Unlock(); return }
    m.ctx, m.cancel = context.WithCancel(ctx)
    m.startedAt = time.Now()
    m.mu.Unlock()

    go m.watchdog()
}

// Stop 结束监视。
func (m *Manager) Stop() {
    m.mu.Lock(); if m.cancel != nil { m.cancel() }; m.mu.Unlock()
}

func (m *Manager) watchdog() {
    t := time.NewTicker(10 * time.Millisecond)
    defer t.Stop()
    for {
        select {
        case <-m.ctx.Done():
            return
        case <-t.C:
            m.mu.Lock()
            var limit time.Duration
            switch m.phase {
            case PhaseGather:
                limit = m.cfg.GatherTimeout
            case PhaseCombine:
                limit = m.cfg.CombineTimeout
            }
            if limit > 0 && time.Since(m.startedAt) >= limit {
                m.timedOut = true
                metrics.Inc("tss_sessions_total", map[string]string{"result": "timeout"})
                metrics.ObserveSummary("tss_round_ms", map[string]string{"round": string(m.phase)}, float64(time.Since(m.startedAt).Milliseconds()))
                logger.ErrorJ("tss_session", map[string]any{"event": "timeout", "phase": string(m.phase), "shares": len(m.shares), "latency_ms": time.Since(m.startedAt).Milliseconds()})
                m.phase = PhaseDone
            }
            m.mu.Unlock()
        }
    }
}

// OnShare 校验并登记一份解密份额，返回是否因此进入 Combine。
// 同一验证者的重复份额不推进；校验失败的份额返回错误且不计数。
func (m *Manager) OnShare(ds *tpke.DecryptionShare) (bool, error) {
    if ds == nil {
        return false, core.VerifyError(core.ErrInvalidDecryptionShare, core.NoIndex, core.NoIndex, nil)
    }
    m.mu.Lock()
    if m.phase == PhaseDone {
        m.mu.Unlock()
        return false, nil
    }
    if _, ok := m.shares[ds.Validator]; ok {
        m.mu.Unlock()
        return false, nil
    }
    m.mu.Unlock()

    // 配对校验不持锁
    if err := m.round.Verify(ds); err != nil {
        m.mu.Lock()
        m.rejected++
        m.mu.Unlock()
        metrics.Inc("tss_shares_total", map[string]string{"result": "rejected"})
        logger.WarnJ("tss_session", map[string]any{"event": "reject", "validator": ds.Validator, "err": err.Error()})
        return false, err
    }

    m.mu.Lock()
    defer m.mu.Unlock()
    if m.phase == PhaseDone {
        return false, nil
    }
    if m.phase == PhaseInit {
        m.phase = PhaseGather
        m.startedAt = time.Now()
        metrics.ObserveSummary("tss_round_ms", map[string]string{"round": string(PhaseInit)}, 0)
        logger.InfoJ("tss_session", map[string]any{"event": "phase", "phase": string(m.phase)})
    }
    if _, ok := m.shares[ds.Validator]; ok {
        return false, nil
    }
    m.shares[ds.Validator] = ds
    metrics.Inc("tss_shares_total", map[string]string{"result": "accepted"})
    if len(m.shares) >= m.round.Threshold() && m.phase == PhaseGather {
        m.phase = PhaseCombine
        metrics.ObserveSummary("tss_round_ms", map[string]string{"round": string(PhaseGather)}, float64(time.Since(m.startedAt).Milliseconds()))
        logger.InfoJ("tss_session", map[string]any{"event": "phase", "phase": string(m.phase), "shares": len(m.shares)})
        m.startedAt = time.Now()
        return true, nil
    }
    return false, nil
}

// Finalize 合并已收集的份额并结束轮次。Combine 阶段以外调用返回错误。
func (m *Manager) Finalize(ctx context.Context) ([]byte, error) {
    m.mu.Lock()
    switch m.phase {
    case PhaseCombine:
    case PhaseDone:
        timedOut := m.timedOut
        m.mu.Unlock()
        if timedOut {
            return nil, ErrTimedOut
        }
        return nil, ErrClosed
    default:
        m.mu.Unlock()
        return nil, ErrNotReady
    }
    shares := make([]*tpke.DecryptionShare, 0, len(m.shares))
    for _, ds := range m.shares {
        shares = append(shares, ds)
    }
    m.mu.Unlock()
    sort.Slice(shares, func(i, j int) bool { return shares[i].Validator < shares[j].Validator })

    pt, err := m.round.Combine(ctx, shares)

    m.mu.Lock()
    defer m.mu.Unlock()
    if m.phase != PhaseCombine {
        // 合并期间超时
        return nil, ErrTimedOut
    }
    m.phase = PhaseDone
    metrics.ObserveSummary("tss_round_ms", map[string]string{"round": string(PhaseCombine)}, float64(time.Since(m.startedAt).Milliseconds()))
    if err != nil {
        metrics.Inc("tss_sessions_total", map[string]string{"result": "error"})
        logger.ErrorJ("tss_session", map[string]any{"event": "finish", "result": "error", "err": err.Error()})
        return nil, err
    }
    metrics.Inc("tss_sessions_total", map[string]string{"result": "ok"})
    logger.InfoJ("tss_session", map[string]any{"event": "finish", "result": "ok", "shares": len(shares)})
    return pt, nil
}

// Status 返回只读状态快照。
type Status struct {
    Phase    Phase
    Shares   int
    Rejected int
    TimedOut bool
}

func (m *Manager) Status() Status {
    m.mu.Lock(); defer m.mu.Unlock()
    return Status{Phase: m.phase, Shares: len(m.shares), Rejected: m.rejected, TimedOut: m.timedOut}
}
