package dkg

import (
	"encoding/hex"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
)

// nullSuite rejects every encoding; it lets codec and config tests run without a curve.
type nullSuite struct{}

func (nullSuite) Name() string       { return "null" }
func (nullSuite) Field() *core.Field { return bls381.ScalarField() }
func (nullSuite) G1() core.Group     { return nullGroup{core.G1} }
func (nullSuite) G2() core.Group     { return nullGroup{core.G2} }
func (nullSuite) GT() core.Group     { return nullGroup{core.GT} }

func (nullSuite) Pair(core.Point, core.Point) (core.Point, error) { return nil, core.ErrNotSupported }

func (nullSuite) PairingProduct([]core.Point, []core.Point) (core.Point, error) {
	return nil, core.ErrNotSupported
}

type nullGroup struct{ id core.GroupID }

func (g nullGroup) ID() core.GroupID      { return g.id }
func (nullGroup) Identity() core.Point    { return nil }
func (nullGroup) Generator() core.Point   { return nil }
func (nullGroup) PointLen() int           { return 0 }
func (nullGroup) Unmarshal([]byte) (core.Point, error) { return nil, core.ErrInvalidPoint }

func (nullGroup) HashToPoint([]byte, []byte) (core.Point, error) { return nil, core.ErrNotSupported }

func hexString(b []byte) string { return hex.EncodeToString(b) }
