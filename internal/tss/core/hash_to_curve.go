package core

// HashToCurve 校验 dst 后在群 g 上执行哈希上曲线（由后端提供常数时间实现）。
func HashToCurve(g Group, msg []byte, dst string) (Point, error) {
    if !IsValidDST(dst) { return nil, ErrInvalidDST }
    if g == nil { return nil, ErrNotImplemented }
    return g.HashToPoint(msg, []byte(dst))
}

// ErrInvalidDST 表示域分离标识不合法。
var ErrInvalidDST = ErrInvalidDSTType{}

// ErrInvalidDSTType 提供可识别的错误类型，便于测试与上层分类。
type ErrInvalidDSTType struct{}

func (ErrInvalidDSTType) Error() string { return "invalid dst" }
