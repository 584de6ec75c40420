package signing

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/aegis-sign/custody/pkg/apierrors"
	"github.com/aegis-sign/custody/pkg/validator"
)

// float64 能精确表示的最大整数。
const maxExactFloat = 1 << 53

// BuildGasParameters 将松散字段映射为 GasParameters；出现的字段均视为显式设置。
func BuildGasParameters(fields map[string]any) (GasParameters, error) {
	fs, err := newFieldSet("gas_fee", fields, "max_fee", "max_priority_fee", "gas_limit")
	if err != nil {
		return GasParameters{}, err
	}
	var gas GasParameters
	if gas.MaxFee, err = fs.wrapped("max_fee"); err != nil {
		return GasParameters{}, err
	}
	if gas.MaxPriorityFee, err = fs.wrapped("max_priority_fee"); err != nil {
		return GasParameters{}, err
	}
	if gas.GasLimit, err = fs.wrapped("gas_limit"); err != nil {
		return GasParameters{}, err
	}
	return gas, nil
}

// BuildEVMSendCustom 构造合约调用/部署负载；必填字段缺失留给 Assemble 判定。
func BuildEVMSendCustom(fields map[string]any) (*EVMSendCustom, error) {
	fs, err := newFieldSet(string(TagEVMSendCustom), fields,
		"chain_id", "from", "to", "value", "input", "input_encoding", "gas_fee", "nonce")
	if err != nil {
		return nil, err
	}
	out := &EVMSendCustom{}
	if out.ChainID, err = fs.uint64("chain_id"); err != nil {
		return nil, err
	}
	if out.From, err = fs.address("from"); err != nil {
		return nil, err
	}
	if out.To, err = fs.address("to"); err != nil {
		return nil, err
	}
	if out.Value, err = fs.amount("value"); err != nil {
		return nil, err
	}
	encRaw, err := fs.str("input_encoding")
	if err != nil {
		return nil, err
	}
	enc, err := validator.NormalizeEncoding(encRaw)
	if err != nil {
		return nil, fs.invalid("input_encoding", err)
	}
	if out.Input, err = fs.bytes("input", enc); err != nil {
		return nil, err
	}
	if out.GasFee, err = fs.gas("gas_fee"); err != nil {
		return nil, err
	}
	if out.Nonce, err = fs.wrapped("nonce"); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildEVMSendNative 构造原生币转账负载。
func BuildEVMSendNative(fields map[string]any) (*EVMSendNative, error) {
	fs, err := newFieldSet(string(TagEVMSendNative), fields,
		"chain_id", "from", "to", "value", "gas_fee", "nonce")
	if err != nil {
		return nil, err
	}
	out := &EVMSendNative{}
	if out.ChainID, err = fs.uint64("chain_id"); err != nil {
		return nil, err
	}
	if out.From, err = fs.address("from"); err != nil {
		return nil, err
	}
	if out.To, err = fs.address("to"); err != nil {
		return nil, err
	}
	if out.Value, err = fs.amount("value"); err != nil {
		return nil, err
	}
	if out.GasFee, err = fs.gas("gas_fee"); err != nil {
		return nil, err
	}
	if out.Nonce, err = fs.wrapped("nonce"); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildEVMSendERC20 构造 ERC20 转账负载。
func BuildEVMSendERC20(fields map[string]any) (*EVMSendERC20, error) {
	fs, err := newFieldSet(string(TagEVMSendERC20), fields,
		"chain_id", "from", "to", "token_contract_address", "amount", "gas_fee", "nonce")
	if err != nil {
		return nil, err
	}
	out := &EVMSendERC20{}
	if out.ChainID, err = fs.uint64("chain_id"); err != nil {
		return nil, err
	}
	if out.From, err = fs.address("from"); err != nil {
		return nil, err
	}
	if out.To, err = fs.address("to"); err != nil {
		return nil, err
	}
	if out.TokenContractAddress, err = fs.address("token_contract_address"); err != nil {
		return nil, err
	}
	if out.Amount, err = fs.amount("amount"); err != nil {
		return nil, err
	}
	if out.GasFee, err = fs.gas("gas_fee"); err != nil {
		return nil, err
	}
	if out.Nonce, err = fs.wrapped("nonce"); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldSet 是按 snake_case 归一化后的输入字段。
type fieldSet struct {
	scope  string
	fields map[string]any
}

func newFieldSet(scope string, raw map[string]any, allowed ...string) (*fieldSet, error) {
	known := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		known[key] = struct{}{}
	}
	normalized := make(map[string]any, len(raw))
	var unknown []string
	for key, value := range raw {
		name := SnakeCase(key)
		if _, ok := known[name]; !ok {
			unknown = append(unknown, key)
			continue
		}
		if _, dup := normalized[name]; dup {
			return nil, apierrors.Newf(apierrors.CodeValidation, "%s.%s: given more than once", scope, name)
		}
		normalized[name] = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apierrors.Newf(apierrors.CodeValidation, "%s: unknown fields %s", scope, strings.Join(unknown, ", "))
	}
	return &fieldSet{scope: scope, fields: normalized}, nil
}

func (f *fieldSet) invalid(key string, err error) error {
	return apierrors.Wrap(apierrors.CodeValidation, fmt.Sprintf("%s.%s: %v", f.scope, key, err), err)
}

func (f *fieldSet) lookup(key string) (any, bool) {
	v, ok := f.fields[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (f *fieldSet) str(key string) (string, error) {
	v, ok := f.lookup(key)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", f.invalid(key, fmt.Errorf("expected string, got %T", v))
	}
	return s, nil
}

func (f *fieldSet) address(key string) (string, error) {
	s, err := f.str(key)
	if err != nil || s == "" {
		return s, err
	}
	if err := validator.ValidateAddress(s); err != nil {
		return "", f.invalid(key, err)
	}
	return s, nil
}

func (f *fieldSet) uint64(key string) (uint64, error) {
	v, ok := f.lookup(key)
	if !ok {
		return 0, nil
	}
	s, err := numberString(v)
	if err != nil {
		return 0, f.invalid(key, err)
	}
	n, err := validator.ParseUint256(s)
	if err != nil {
		return 0, f.invalid(key, err)
	}
	if !n.IsUint64() {
		return 0, f.invalid(key, fmt.Errorf("%s overflows uint64", s))
	}
	return n.Uint64(), nil
}

func (f *fieldSet) amount(key string) (string, error) {
	v, ok := f.lookup(key)
	if !ok {
		return "", nil
	}
	s, err := numberString(v)
	if err != nil {
		return "", f.invalid(key, err)
	}
	out, err := validator.ParseAmount(s)
	if err != nil {
		return "", f.invalid(key, err)
	}
	return out, nil
}

// wrapped 同时接受裸值与 {"value": ...} 包装形式。
func (f *fieldSet) wrapped(key string) (WrappedUint, error) {
	v, ok := f.lookup(key)
	if !ok {
		return Unset(), nil
	}
	if obj, isObj := v.(map[string]any); isObj {
		if len(obj) != 1 {
			return Unset(), f.invalid(key, fmt.Errorf("wrapper object must only hold \"value\""))
		}
		inner, hasValue := obj["value"]
		if !hasValue {
			return Unset(), f.invalid(key, fmt.Errorf("wrapper object must only hold \"value\""))
		}
		if inner == nil {
			return Unset(), nil
		}
		v = inner
	}
	s, err := numberString(v)
	if err != nil {
		return Unset(), f.invalid(key, err)
	}
	n, err := validator.ParseUint256(s)
	if err != nil {
		return Unset(), f.invalid(key, err)
	}
	return Wrap(n), nil
}

func (f *fieldSet) gas(key string) (GasParameters, error) {
	v, ok := f.lookup(key)
	if !ok {
		return GasParameters{}, nil
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		return GasParameters{}, f.invalid(key, fmt.Errorf("expected object, got %T", v))
	}
	return BuildGasParameters(obj)
}

func (f *fieldSet) bytes(key string, enc validator.InputEncoding) ([]byte, error) {
	v, ok := f.lookup(key)
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case []byte:
		return append([]byte(nil), t...), nil
	case string:
		out, err := validator.DecodeInput(t, enc)
		if err != nil {
			return nil, f.invalid(key, err)
		}
		return out, nil
	case []any:
		out := make([]byte, len(t))
		for i, item := range t {
			s, err := numberString(item)
			if err != nil {
				return nil, f.invalid(key, fmt.Errorf("byte %d: %w", i, err))
			}
			b, err := strconv.ParseUint(s, 10, 8)
			if err != nil {
				return nil, f.invalid(key, fmt.Errorf("byte %d: %w", i, err))
			}
			out[i] = byte(b)
		}
		return out, nil
	default:
		return nil, f.invalid(key, fmt.Errorf("expected hex string or byte array, got %T", v))
	}
}

// numberString 将 JSON/YAML 解码出的各种数值形式统一为字符串。
func numberString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", fmt.Errorf("%v is not an integer", t)
		}
		if math.Abs(t) > maxExactFloat {
			return "", fmt.Errorf("%v exceeds float precision, pass it as a string", t)
		}
		return strconv.FormatFloat(t, 'f', 0, 64), nil
	case *big.Int:
		if t == nil {
			return "", fmt.Errorf("nil big.Int")
		}
		return t.String(), nil
	default:
		return "", fmt.Errorf("expected number, got %T", v)
	}
}

// SnakeCase 将 lowerCamelCase 键转换为 proto 字段名；已是 snake_case 的键原样返回。
func SnakeCase(key string) string {
	runes := []rune(key)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
