package validator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// InputEncoding 描述 calldata 字符串的编码。
type InputEncoding string

const (
	InputEncodingHex    InputEncoding = "hex"
	InputEncodingBase64 InputEncoding = "base64"
)

// NormalizeEncoding 将用户输入转换为内部常量。
func NormalizeEncoding(raw string) (InputEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(InputEncodingHex):
		return InputEncodingHex, nil
	case string(InputEncodingBase64):
		return InputEncodingBase64, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", raw)
	}
}

var (
	errEmptyNumber   = errors.New("number is empty")
	errNegative      = errors.New("must not be negative")
	errNotInteger    = errors.New("must be an integer in base units")
	errEmptyAddress  = errors.New("address is empty")
	errNotHexAddress = errors.New("not a 20-byte hex address")
)

// ParseUint256 解析十进制或 0x 前缀十六进制的无符号 256 位整数。
func ParseUint256(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errEmptyNumber
	}
	v, ok := math.ParseBig256(s)
	if !ok || v == nil {
		return nil, fmt.Errorf("invalid uint256 %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q %w", raw, errNegative)
	}
	return v, nil
}

// ParseAmount 校验金额为非负整数（最小单位），返回规范化后的十进制字符串。
func ParseAmount(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errEmptyNumber
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return "", fmt.Errorf("invalid amount format: %w", err)
	}
	if dec.IsNegative() {
		return "", fmt.Errorf("amount %w", errNegative)
	}
	if !dec.IsInteger() {
		return "", fmt.Errorf("amount %w", errNotInteger)
	}
	return dec.BigInt().String(), nil
}

// ValidateAddress 确保地址为 0x 前缀的 20 字节十六进制串。
func ValidateAddress(addr string) error {
	if addr == "" {
		return errEmptyAddress
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%q: missing 0x prefix", addr)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%q: %w", addr, errNotHexAddress)
	}
	return nil
}

// DecodeInput 将 calldata 解码为二进制；hex 编码允许省略 0x 前缀。
func DecodeInput(raw string, enc InputEncoding) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	switch enc {
	case InputEncodingHex:
		if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
			raw = "0x" + raw
		}
		decoded, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid hex input: %w", err)
		}
		return decoded, nil
	case InputEncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 input: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}
