package dkg

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 线上编码：点均为压缩字节，JSON 中为 base64。
type transcriptWire struct {
	Dealer     int      `json:"dealer"`
	Commitment [][]byte `json:"commitment"`
	Shares     [][]byte `json:"shares"`
	Sigma      []byte   `json:"sigma"`
}

type aggregateWire struct {
	Dealers    []int    `json:"dealers"`
	Commitment [][]byte `json:"commitment"`
	Shares     [][]byte `json:"shares"`
	Sigma      []byte   `json:"sigma"`
	SessionTag []byte   `json:"session_tag,omitempty"`
}

func encodePoints(ps []core.Point) ([][]byte, error) {
	out := make([][]byte, len(ps))
	for i, p := range ps {
		b, err := core.PointBytes(p)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		out[i] = b
	}
	return out, nil
}

func decodePoints(g core.Group, bs [][]byte, what string) ([]core.Point, error) {
	out := make([]core.Point, len(bs))
	for i, b := range bs {
		p, err := g.Unmarshal(b)
		if err != nil {
			return nil, errors.Wrapf(err, "%s[%d]", what, i)
		}
		out[i] = p
	}
	return out, nil
}

// EncodeTranscript serialises t for the transport.
func EncodeTranscript(t *PVSSTranscript) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil transcript")
	}
	w := transcriptWire{Dealer: t.Dealer}
	var err error
	if w.Commitment, err = encodePoints(t.Commitment); err != nil {
		return nil, errors.Wrap(err, "commitment")
	}
	if w.Shares, err = encodePoints(t.Shares); err != nil {
		return nil, errors.Wrap(err, "shares")
	}
	if w.Sigma, err = core.PointBytes(t.Sigma); err != nil {
		return nil, errors.Wrap(err, "sigma")
	}
	return json.Marshal(w)
}

// DecodeTranscript parses a transcript. Points off the curve or outside the
// prime-order subgroup are rejected; the result still needs Verify.
func DecodeTranscript(suite core.Suite, b []byte) (*PVSSTranscript, error) {
	var w transcriptWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode transcript")
	}
	t := &PVSSTranscript{Dealer: w.Dealer}
	var err error
	if t.Commitment, err = decodePoints(suite.G1(), w.Commitment, "commitment"); err != nil {
		return nil, errors.Wrap(err, "decode transcript")
	}
	if t.Shares, err = decodePoints(suite.G2(), w.Shares, "shares"); err != nil {
		return nil, errors.Wrap(err, "decode transcript")
	}
	if t.Sigma, err = suite.G2().Unmarshal(w.Sigma); err != nil {
		return nil, errors.Wrap(err, "decode transcript: sigma")
	}
	return t, nil
}

// EncodeAggregate serialises an aggregated transcript including its session tag.
func EncodeAggregate(a *AggregatedTranscript) ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil aggregate")
	}
	w := aggregateWire{Dealers: a.Dealers, SessionTag: a.SessionTag}
	var err error
	if w.Commitment, err = encodePoints(a.Commitment); err != nil {
		return nil, errors.Wrap(err, "commitment")
	}
	if w.Shares, err = encodePoints(a.Shares); err != nil {
		return nil, errors.Wrap(err, "shares")
	}
	if w.Sigma, err = core.PointBytes(a.Sigma); err != nil {
		return nil, errors.Wrap(err, "sigma")
	}
	return json.Marshal(w)
}

func DecodeAggregate(suite core.Suite, b []byte) (*AggregatedTranscript, error) {
	var w aggregateWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode aggregate")
	}
	a := &AggregatedTranscript{Dealers: w.Dealers, SessionTag: w.SessionTag}
	var err error
	if a.Commitment, err = decodePoints(suite.G1(), w.Commitment, "commitment"); err != nil {
		return nil, errors.Wrap(err, "decode aggregate")
	}
	if a.Shares, err = decodePoints(suite.G2(), w.Shares, "shares"); err != nil {
		return nil, errors.Wrap(err, "decode aggregate")
	}
	if a.Sigma, err = suite.G2().Unmarshal(w.Sigma); err != nil {
		return nil, errors.Wrap(err, "decode aggregate: sigma")
	}
	return a, nil
}
