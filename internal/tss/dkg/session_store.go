package dkg

import (
    "errors"
    "path/filepath"
    "sync"

    "github.com/klauspost/compress/zstd"

    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// SessionStore 保存会话快照（公开数据：id、epoch、已接受的 transcript 与聚合结果）。
// 正文经 zstd 压缩后按 CRC 帧落盘。
type SessionStore struct { dir string; mu sync.Mutex }

func NewSessionStore(dir string) *SessionStore { return &SessionStore{dir: dir} }

var ErrSessNotFound = errors.New("session not found")

const (
    magicSess uint32 = 0x54535353 // 'TSSS'
    flagZstd  uint16 = 1 << 1
)

type sessionState struct {
    ID          string   `json:"id"`
    Epoch       uint64   `json:"epoch"`
    Threshold   int      `json:"threshold"`
    N           int      `json:"n"`
    Transcripts [][]byte `json:"transcripts"`
    Aggregate   []byte   `json:"aggregate,omitempty"`
}

func (s *SessionStore) pathFor(id string) string { return filepath.Join(s.dir, "tss_session_"+id+".dat") }

func compress(b []byte) ([]byte, error) {
    enc, err := zstd.NewWriter(nil)
    if err != nil { return nil, err }
    out := enc.EncodeAll(b, nil)
    return out, enc.Close()
}

func decompress(b []byte) ([]byte, error) {
    dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameLen))
    if err != nil { return nil, err }
    defer dec.Close()
    return dec.DecodeAll(b, nil)
}

func (s *SessionStore) Save(id string, st sessionState) error {
    s.mu.Lock(); defer s.mu.Unlock()
    err := func() error {
        b, err := json.Marshal(st)
        if err != nil { return err }
        z, err := compress(b)
        if err != nil { return err }
        return writeFrame(s.pathFor(id), magicSess, flagZstd, z, false)
    }()
    if err != nil {
        logger.ErrorJ("tss_session", map[string]any{"op": "persist", "result": "error", "err": err.Error(), "session": id})
        return err
    }
    logger.InfoJ("tss_session", map[string]any{"op": "persist", "result": "ok", "session": id, "epoch": st.Epoch, "transcripts": len(st.Transcripts)})
    return nil
}

func (s *SessionStore) Load(id string) (sessionState, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    st, err := func() (sessionState, error) {
        flags, body, err := readFrame(s.pathFor(id), magicSess)
        if err != nil { return sessionState{}, err }
        if flags&flagZstd != 0 {
            if body, err = decompress(body); err != nil { return sessionState{}, err }
        }
        var st sessionState
        err = json.Unmarshal(body, &st)
        return st, err
    }()
    if err != nil {
        metrics.Inc("tss_recovery_total", map[string]string{"result": "fail"})
        return sessionState{}, ErrSessNotFound
    }
    metrics.Inc("tss_recovery_total", map[string]string{"result": "ok"})
    return st, nil
}
