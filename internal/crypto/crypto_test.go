package crypto

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Well-known development key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewSignerAddress(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if s.Address() != want {
		t.Fatalf("address = %s, want %s", s.Address().Hex(), want.Hex())
	}
	if _, err := NewSigner("not-hex"); err == nil {
		t.Fatal("NewSigner accepted garbage")
	}
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	to := common.HexToAddress("0x0000000000000000000000000000000000000042")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)})
	chainID := big.NewInt(42220)
	signed, err := s.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("sender = %s, want %s", from.Hex(), s.Address().Hex())
	}
}

func TestSignMessageRoundTrip(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	msg := []byte("challenge 7 approved")
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	got, err := RecoverMessageSigner(msg, sig)
	if err != nil {
		t.Fatalf("RecoverMessageSigner: %v", err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
	other, _ := RecoverMessageSigner([]byte("challenge 7 rejected"), sig)
	if other == s.Address() {
		t.Fatal("signature verified for a different message")
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	addr, err := KeyAddress(blob)
	if err != nil {
		t.Fatalf("KeyAddress: %v", err)
	}
	if addr != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("address = %s", addr)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKey {
		t.Fatalf("decrypted %s", got)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}

	path := filepath.Join(t.TempDir(), "bot.key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("LoadSigner: %v", err)
	}
	if s.Address().Hex() != addr {
		t.Fatalf("loaded signer address %s", s.Address().Hex())
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("LoadKey with no source succeeded")
	}
}

func TestWebhookAuth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	auth := &WebhookAuth{Secret: "s3cret", Now: func() time.Time { return now }}
	body := []byte(`{"text":"I predict"}`)
	h := auth.Sign(body, now.Unix())

	if err := auth.Verify(body, h[HeaderTimestamp], h[HeaderSignature]); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := auth.Verify([]byte("tampered"), h[HeaderTimestamp], h[HeaderSignature]); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("tampered body err = %v", err)
	}
	if err := auth.Verify(body, "", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("missing headers err = %v", err)
	}

	old := auth.Sign(body, now.Add(-time.Hour).Unix())
	if err := auth.Verify(body, old[HeaderTimestamp], old[HeaderSignature]); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stale timestamp err = %v", err)
	}
}
