//go:build blst

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/dkg"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/session"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/tpke"
)

const usage = `usage:
  tdkg-tpke encrypt --conf node.json | --pubkey HEX [--aad S] [--in FILE]
  tdkg-tpke share   --conf node.json --ct FILE [--aad S]
  tdkg-tpke combine --conf node.json --ct FILE [--aad S] SHARE_FILE...`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	suite, err := bls381.New()
	if err != nil {
		fail(err)
	}
	ctx := context.Background()
	switch os.Args[1] {
	case "encrypt":
		err = encrypt(ctx, suite, os.Args[2:])
	case "share":
		err = share(ctx, suite, os.Args[2:])
	case "combine":
		err = combine(ctx, suite, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	if core.KindOf(err) == core.KindConfiguration {
		os.Exit(2)
	}
	os.Exit(1)
}

type common struct {
	fs     *flag.FlagSet
	conf   string
	ctPath string
	aad    string
}

func newCommon(name string) *common {
	c := &common{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	c.fs.StringVar(&c.conf, "conf", "", "Path to node session config")
	c.fs.StringVar(&c.ctPath, "ct", "", "Path to ciphertext JSON")
	c.fs.StringVar(&c.aad, "aad", "", "Associated data bound to the ciphertext")
	return c
}

// openSession restores the node's aggregated session from its snapshot dir.
func (c *common) openSession(ctx context.Context, suite core.Suite) (dkg.SessionConfig, *dkg.Session, error) {
	cfg, err := dkg.LoadSessionConfig(c.conf)
	if err != nil {
		return cfg, nil, err
	}
	sess, err := cfg.OpenSession(ctx, suite)
	if err != nil {
		return cfg, nil, err
	}
	if _, err := sess.Aggregated(); err != nil {
		return cfg, nil, errors.Wrap(err, "session has no aggregate; run tdkg-node first")
	}
	return cfg, sess, nil
}

func (c *common) ciphertext(suite core.Suite) (*tpke.Ciphertext, error) {
	b, err := os.ReadFile(c.ctPath)
	if err != nil {
		return nil, err
	}
	return tpke.DecodeCiphertext(suite, b)
}

func encrypt(ctx context.Context, suite core.Suite, args []string) error {
	c := newCommon("encrypt")
	var pubHex, in string
	c.fs.StringVar(&pubHex, "pubkey", "", "Hex group public key (G1); overrides --conf")
	c.fs.StringVar(&in, "in", "", "Plaintext file; default: stdin")
	_ = c.fs.Parse(args)

	var pk core.Point
	switch {
	case pubHex != "":
		b, err := hex.DecodeString(pubHex)
		if err != nil {
			return errors.Wrap(err, "pubkey")
		}
		if pk, err = suite.G1().Unmarshal(b); err != nil {
			return errors.Wrap(err, "pubkey")
		}
	case c.conf != "":
		_, sess, err := c.openSession(ctx, suite)
		if err != nil {
			return err
		}
		agg, _ := sess.Aggregated()
		pk = agg.PublicKey()
	default:
		return errors.New("missing --pubkey or --conf")
	}
	msg, err := readAll(in)
	if err != nil {
		return err
	}
	ct, err := tpke.Encrypt(suite, pk, msg, []byte(c.aad), rand.Reader)
	if err != nil {
		return err
	}
	b, err := tpke.EncodeCiphertext(ct)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func share(ctx context.Context, suite core.Suite, args []string) error {
	c := newCommon("share")
	_ = c.fs.Parse(args)
	cfg, sess, err := c.openSession(ctx, suite)
	if err != nil {
		return err
	}
	ct, err := c.ciphertext(suite)
	if err != nil {
		return err
	}
	ks, err := dkg.NewKeyStoreFromEnv(cfg.KeyShareFile()).LoadKeyShare(ctx)
	if err != nil {
		return errors.Wrap(err, "load key share")
	}
	kp, ps, err := ks.Open(suite)
	ks.Wipe()
	if err != nil {
		return err
	}
	defer kp.Wipe()
	defer ps.Wipe()
	ds, err := tpke.CreateDecryptionShare(sess, ct, []byte(c.aad), ps, kp)
	if err != nil {
		return err
	}
	b, err := tpke.EncodeDecryptionShare(ds)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func combine(ctx context.Context, suite core.Suite, args []string) error {
	c := newCommon("combine")
	_ = c.fs.Parse(args)
	_, sess, err := c.openSession(ctx, suite)
	if err != nil {
		return err
	}
	ct, err := c.ciphertext(suite)
	if err != nil {
		return err
	}
	m := session.NewManager(tpke.NewRound(sess, ct, []byte(c.aad)), session.Config{})
	m.Start(ctx)
	defer m.Stop()
	ready := false
	for _, path := range c.fs.Args() {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		ds, err := tpke.DecodeDecryptionShare(sess, b)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			continue
		}
		adv, err := m.OnShare(ds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reject %s: %v\n", path, err)
			continue
		}
		ready = ready || adv
	}
	if !ready {
		st := m.Status()
		return core.VerifyError(core.ErrInsufficientShares, core.NoIndex, core.NoIndex,
			fmt.Errorf("%d valid shares, %d rejected", st.Shares, st.Rejected))
	}
	pt, err := m.Finalize(ctx)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(pt)
	return err
}

func readAll(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
