package dkg

import (
    "context"
    "crypto/aes"
    "crypto/cipher"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "os"
    "sync"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// KeyShare 是单个验证者在某会话 epoch 下持久化的阈值密钥材料。
type KeyShare struct {
    Index         int    `json:"index"`
    SessionID     string `json:"session_id"`
    Epoch         uint64 `json:"epoch"`
    SessionTag    []byte `json:"session_tag"`
    PublicKey     []byte `json:"public_key"`     // 群公钥（G1 压缩）
    DecryptionKey []byte `json:"decryption_key"` // dk（标量）
    PrivateShare  []byte `json:"private_share"`  // Z_i（G2 压缩）
}

// Wipe 清零秘密字段。
func (k *KeyShare) Wipe() {
    zero(k.DecryptionKey)
    zero(k.PrivateShare)
}

// Open 还原密钥对与私钥份额。
func (k KeyShare) Open(suite core.Suite) (*Keypair, *PrivateShare, error) {
    kp, err := KeypairFromSecret(suite, k.Index, k.DecryptionKey)
    if err != nil { return nil, nil, err }
    z, err := suite.G2().Unmarshal(k.PrivateShare)
    if err != nil { kp.Wipe(); return nil, nil, err }
    tag := append([]byte(nil), k.SessionTag...)
    return kp, &PrivateShare{Validator: k.Index, Value: z, SessionTag: tag}, nil
}

// KeyStore 提供 KeyShare 的本地持久化，采用原子写（tmp+fsync+rename）与 .bak 回退。
// 可选：启用 AES-256-GCM 加密（默认关闭），并在读写后对敏感内存清零。
type KeyStore struct {
    mu      sync.Mutex
    path    string // e.g. tss_keyshare.dat
    aead    cipher.AEAD
    encrypt bool
    zeroize bool
}

// NewKeyStore 构造指定路径的 KeyStore（默认不加密）。
func NewKeyStore(path string) *KeyStore { return &KeyStore{path: path} }

// NewKeyStoreEncrypted 使用给定 32 字节密钥构造开启加密的 KeyStore；
// zeroize 表示读写后将明文缓冲区清零。若 key 长度非法，则回退为不加密。
func NewKeyStoreEncrypted(path string, key []byte, zeroize bool) *KeyStore {
    ks := &KeyStore{path: path}
    if len(key) != 32 {
        return ks
    }
    if a, err := newAESGCM(key); err == nil {
        ks.aead = a
        ks.encrypt = true
        ks.zeroize = zeroize
    }
    zero(key)
    return ks
}

// NewKeyStoreFromEnv 通过环境变量构造 KeyStore（可选加密），默认不开启。
// AEQUA_TSS_KEYSTORE_ENCRYPT=1 开启；密钥通过 AEQUA_TSS_KEYSTORE_KEY（hex 编码 64 字符）
// 或 AEQUA_TSS_KEYSTORE_KEY_FILE（读取原始 32 字节）提供；AEQUA_TSS_ZEROIZE=1 开启内存清零。
func NewKeyStoreFromEnv(path string) *KeyStore {
    if os.Getenv("AEQUA_TSS_KEYSTORE_ENCRYPT") == "1" {
        var key []byte
        if hexStr := os.Getenv("AEQUA_TSS_KEYSTORE_KEY"); hexStr != "" {
            if b, err := hex.DecodeString(hexStr); err == nil {
                key = b
            }
        } else if f := os.Getenv("AEQUA_TSS_KEYSTORE_KEY_FILE"); f != "" {
            if b, err := os.ReadFile(f); err == nil {
                key = b
            }
        }
        zeroize := os.Getenv("AEQUA_TSS_ZEROIZE") == "1"
        return NewKeyStoreEncrypted(path, key, zeroize)
    }
    return NewKeyStore(path)
}

// Encrypted 报告是否启用了静态加密。
func (s *KeyStore) Encrypted() bool { return s.encrypt }

var ErrNotFound = errors.New("not found")

const (
    magicTSS    uint32 = 0x5453534b // 'TSSK'
    flagEncrypt uint16 = 1 << 0
)

// body = 未加密时为 JSON 编码的 KeyShare；加密时为 nonce(12B)||ciphertext
func (s *KeyStore) seal(ks KeyShare) (uint16, []byte, error) {
    payload, err := json.Marshal(ks)
    if err != nil { return 0, nil, err }
    if !s.encrypt || s.aead == nil {
        return 0, payload, nil
    }
    defer zero(payload)
    nonce := make([]byte, s.aead.NonceSize())
    if _, err := rand.Read(nonce); err != nil { return 0, nil, err }
    body := append(nonce, s.aead.Seal(nil, nonce, payload, nil)...)
    return flagEncrypt, body, nil
}

func (s *KeyStore) readFile(path string) (KeyShare, error) {
    flags, body, err := readFrame(path, magicTSS)
    if err != nil { return KeyShare{}, err }
    plain := body
    if (flags & flagEncrypt) != 0 {
        if s.aead == nil { return KeyShare{}, errors.New("encrypted but no key") }
        ns := s.aead.NonceSize()
        if len(body) < ns { return KeyShare{}, errors.New("bad nonce") }
        p, err := s.aead.Open(nil, body[:ns], body[ns:], nil)
        if err != nil { return KeyShare{}, err }
        plain = p
    }
    var ks KeyShare
    err = json.Unmarshal(plain, &ks)
    if s.zeroize || (flags&flagEncrypt) != 0 { zero(plain) }
    if err != nil { return KeyShare{}, err }
    return ks, nil
}

// SaveKeyShare 持久化 KeyShare
func (s *KeyStore) SaveKeyShare(_ context.Context, ks KeyShare) error {
    begin := time.Now()
    s.mu.Lock(); defer s.mu.Unlock()
    flags, body, err := s.seal(ks)
    if err == nil {
        err = writeFrame(s.path, magicTSS, flags, body, true)
        if s.zeroize && flags == 0 { zero(body) }
    }
    if err != nil {
        metrics.Inc("tss_persist_errors_total", nil)
        logger.ErrorJ("tss_storage", map[string]any{"op": "persist", "result": "error", "err": err.Error(), "index": ks.Index})
        return err
    }
    ms := float64(time.Since(begin).Milliseconds())
    metrics.ObserveSummary("tss_persist_ms", nil, ms)
    logger.InfoJ("tss_storage", map[string]any{"op": "persist", "result": "ok", "index": ks.Index, "epoch": ks.Epoch, "latency_ms": ms})
    return nil
}

// LoadKeyShare 读取 KeyShare，若主文件损坏则回退到 .bak。
func (s *KeyStore) LoadKeyShare(_ context.Context) (KeyShare, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    if ks, err := s.readFile(s.path); err == nil {
        metrics.Inc("tss_recovery_total", map[string]string{"result": "ok"})
        logger.InfoJ("tss_storage", map[string]any{"op": "recovery", "result": "ok"})
        return ks, nil
    }
    if ks, err := s.readFile(s.path + ".bak"); err == nil {
        metrics.Inc("tss_recovery_total", map[string]string{"result": "fallback"})
        logger.InfoJ("tss_storage", map[string]any{"op": "recovery", "result": "fallback"})
        return ks, nil
    }
    metrics.Inc("tss_recovery_total", map[string]string{"result": "fail"})
    logger.InfoJ("tss_storage", map[string]any{"op": "recovery", "result": "miss"})
    return KeyShare{}, ErrNotFound
}

// Close 为占位（无状态）
func (s *KeyStore) Close() error { return nil }

// newAESGCM 构造 AES‑256‑GCM 实例。
func newAESGCM(key []byte) (cipher.AEAD, error) {
    block, err := aes.NewCipher(key)
    if err != nil { return nil, err }
    return cipher.NewGCM(block)
}

func zero(b []byte) { core.WipeBytes(b) }
