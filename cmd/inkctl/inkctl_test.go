package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/identity"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
)

func TestDeriveCmd(t *testing.T) {
	cmd := deriveCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"EF:8B:C4:12"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var got identity.Identity
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got != identity.DeriveIdentity("EF:8B:C4:12") {
		t.Fatalf("got %+v", got)
	}
}

func TestDeriveCmdRejectsEmptySerial(t *testing.T) {
	cmd := deriveCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"zz-zz"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSignCmd(t *testing.T) {
	body := []byte(`{"proof_id":"prf_1","status":"verified"}`)
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := signCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--secret", "s3cret", path})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	want := security.InkSignatureHeader + ": " + security.Sign(body, "s3cret", security.Hex)
	if strings.TrimSpace(out.String()) != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}

func TestSignCmdShopifyFromStdin(t *testing.T) {
	body := []byte(`{"id":1}`)
	cmd := signCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(bytes.NewReader(body))
	cmd.SetArgs([]string{"--secret", "k", "--shopify", "-"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	sig := strings.TrimPrefix(strings.TrimSpace(out.String()), security.ShopifySignatureHeader+": ")
	if !security.VerifyBase64(body, sig, "k") {
		t.Fatalf("signature %q does not verify", sig)
	}
}

func TestSignCmdRequiresSecret(t *testing.T) {
	t.Setenv("INK_WEBHOOK_SECRET", "")
	cmd := signCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-"})
	cmd.SetIn(strings.NewReader("x"))
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}
