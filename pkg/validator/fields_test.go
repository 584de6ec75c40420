package validator

import (
	"math/big"
	"testing"
)

func TestParseUint256(t *testing.T) {
	v, err := ParseUint256("21000")
	if err != nil {
		t.Fatalf("decimal should parse: %v", err)
	}
	if v.Cmp(big.NewInt(21000)) != 0 {
		t.Fatalf("got %s, want 21000", v)
	}
	hexV, err := ParseUint256("0x5208")
	if err != nil {
		t.Fatalf("hex should parse: %v", err)
	}
	if hexV.Cmp(v) != 0 {
		t.Fatalf("hex %s != decimal %s", hexV, v)
	}
	zero, err := ParseUint256("0")
	if err != nil || zero.Sign() != 0 {
		t.Fatalf("explicit zero must parse, got %v %v", zero, err)
	}
	if _, err := ParseUint256(""); err == nil {
		t.Fatal("expected error for empty number")
	}
	if _, err := ParseUint256("-1"); err == nil {
		t.Fatal("expected error for negative number")
	}
	if _, err := ParseUint256("12.5"); err == nil {
		t.Fatal("expected error for fractional number")
	}
	if _, err := ParseUint256("0x1" + "0000000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Fatal("expected error for value above 2^256-1")
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1000000")
	if err != nil || got != "1000000" {
		t.Fatalf("got %q %v", got, err)
	}
	if got, err := ParseAmount("1e6"); err != nil || got != "1000000" {
		t.Fatalf("exponent form should normalize, got %q %v", got, err)
	}
	if _, err := ParseAmount("-1"); err == nil {
		t.Fatal("expected error for negative amount")
	}
	if _, err := ParseAmount("1.5"); err == nil {
		t.Fatal("expected error for fractional amount")
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatal("expected error for non numeric amount")
	}
}

func TestValidateAddress(t *testing.T) {
	if err := ValidateAddress("0x544845005e42fE00a3C0E9735EEEC25Aa068b428"); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	if err := ValidateAddress("544845005e42fE00a3C0E9735EEEC25Aa068b428"); err == nil {
		t.Fatal("expected error without 0x prefix")
	}
	if err := ValidateAddress("0x1234"); err == nil {
		t.Fatal("expected error for short address")
	}
	if err := ValidateAddress(""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestDecodeInput(t *testing.T) {
	withPrefix, err := DecodeInput("0x6080", InputEncodingHex)
	if err != nil || len(withPrefix) != 2 || withPrefix[0] != 0x60 {
		t.Fatalf("got %x %v", withPrefix, err)
	}
	noPrefix, err := DecodeInput("6080", InputEncodingHex)
	if err != nil || string(noPrefix) != string(withPrefix) {
		t.Fatalf("prefix-less hex should decode the same, got %x %v", noPrefix, err)
	}
	b64, err := DecodeInput("YIA=", InputEncodingBase64)
	if err != nil || string(b64) != string(withPrefix) {
		t.Fatalf("base64 should decode the same, got %x %v", b64, err)
	}
	if _, err := DecodeInput("0x608", InputEncodingHex); err == nil {
		t.Fatal("expected error for odd-length hex")
	}
	if empty, err := DecodeInput("", InputEncodingHex); err != nil || empty != nil {
		t.Fatalf("empty input should be nil, got %x %v", empty, err)
	}
	if _, err := NormalizeEncoding("HEX"); err != nil {
		t.Fatalf("normalize uppercase failed: %v", err)
	}
	if _, err := NormalizeEncoding("utf8"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}
