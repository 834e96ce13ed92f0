//go:build blst

package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/dkg"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		n   int
		t   int
		out string
	)
	flag.IntVar(&n, "n", 4, "Total validators")
	flag.IntVar(&t, "t", 1, "Threshold T (T+1 shares decrypt)")
	flag.StringVar(&out, "out", "tdkg-keys", "Output directory")
	flag.Parse()

	if n < 2 || t < 1 || t >= n {
		fmt.Fprintln(os.Stderr, "invalid n/t: need 1 <= t < n")
		os.Exit(2)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	suite, err := bls381.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	keys := make([]*dkg.Keypair, n)
	members := make([]dkg.ValidatorConfig, n)
	for i := range keys {
		kp, err := dkg.GenerateKeypair(suite, i, rand.Reader)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		ek, err := kp.EncryptionKey.MarshalBinary()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		keys[i] = kp
		members[i] = dkg.ValidatorConfig{Index: i, EncryptionKey: hex.EncodeToString(ek)}
	}
	defer func() {
		for _, kp := range keys {
			kp.Wipe()
		}
	}()

	id := uuid.New().String()
	for i, kp := range keys {
		cfg := dkg.SessionConfig{
			SessionID:    id,
			Threshold:    t,
			Index:        i,
			KeySharePath: filepath.Join(out, fmt.Sprintf("keyshare-%d.dat", i)),
			SessionDir:   filepath.Join(out, fmt.Sprintf("session-%d", i)),
			Validators:   members,
		}
		if err := writeJSON(filepath.Join(out, fmt.Sprintf("node-%d.json", i)), cfg); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		sk := []byte(hex.EncodeToString(kp.MarshalSecret()))
		err := os.WriteFile(filepath.Join(out, fmt.Sprintf("validator-%d.key", i)), sk, 0o600)
		for j := range sk {
			sk[j] = 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}
	fmt.Printf("session %s: wrote %d node configs to %s\n", id, n, out)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
