package signing

import (
	"encoding/json"
	"math/big"
)

// VariantTag 标识 SigningRequest 的具体分支，取值与线上 oneof 字段名一致。
type VariantTag string

const (
	TagEVMSendNative VariantTag = "evm_send_native"
	TagEVMSendERC20  VariantTag = "evm_send_erc20"
	TagEVMSendCustom VariantTag = "evm_send_custom"
)

// Variant 是 SigningRequest 的封闭联合类型，只有本包内的类型可以实现。
type Variant interface {
	Tag() VariantTag
	isVariant()
}

// WrappedUint 区分 "未设置，使用服务端默认值" 与 "显式设置（可以为 0）"。
type WrappedUint struct {
	v *big.Int
}

// Unset 返回未设置的值。
func Unset() WrappedUint { return WrappedUint{} }

// Wrap 包装一个显式值，nil 视为未设置。
func Wrap(v *big.Int) WrappedUint {
	if v == nil {
		return WrappedUint{}
	}
	return WrappedUint{v: new(big.Int).Set(v)}
}

// WrapUint64 包装 uint64 显式值。
func WrapUint64(v uint64) WrappedUint {
	return WrappedUint{v: new(big.Int).SetUint64(v)}
}

// IsSet 报告是否显式设置。
func (w WrappedUint) IsSet() bool { return w.v != nil }

// Big 返回副本；未设置时返回 nil。
func (w WrappedUint) Big() *big.Int {
	if w.v == nil {
		return nil
	}
	return new(big.Int).Set(w.v)
}

// String 返回十进制表示；未设置时为空串。
func (w WrappedUint) String() string {
	if w.v == nil {
		return ""
	}
	return w.v.String()
}

// Equal 比较两个包装值（含设置状态）。
func (w WrappedUint) Equal(o WrappedUint) bool {
	if w.v == nil || o.v == nil {
		return w.v == nil && o.v == nil
	}
	return w.v.Cmp(o.v) == 0
}

func (w WrappedUint) MarshalJSON() ([]byte, error) {
	if w.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(w.v.String())
}

// GasParameters 对应 EVMGas，三个字段均为可选包装值。
type GasParameters struct {
	MaxFee         WrappedUint `json:"max_fee"`
	MaxPriorityFee WrappedUint `json:"max_priority_fee"`
	GasLimit       WrappedUint `json:"gas_limit"`
}

// IsZero 为 true 时不在请求中携带 gas_fee。
func (g GasParameters) IsZero() bool {
	return !g.MaxFee.IsSet() && !g.MaxPriorityFee.IsSet() && !g.GasLimit.IsSet()
}

// EVMSendCustom 任意合约调用或合约部署（To 为空）。
type EVMSendCustom struct {
	ChainID uint64        `json:"chain_id" validate:"gt=0"`
	From    string        `json:"from" validate:"required,evm_address"`
	To      string        `json:"to" validate:"omitempty,evm_address"`
	Value   string        `json:"value" validate:"required,amount"`
	Input   []byte        `json:"input"`
	GasFee  GasParameters `json:"gas_fee"`
	Nonce   WrappedUint   `json:"nonce"`
}

func (*EVMSendCustom) Tag() VariantTag { return TagEVMSendCustom }
func (*EVMSendCustom) isVariant()      {}

// EVMSendNative 原生币转账。
type EVMSendNative struct {
	ChainID uint64        `json:"chain_id" validate:"gt=0"`
	From    string        `json:"from" validate:"required,evm_address"`
	To      string        `json:"to" validate:"required,evm_address"`
	Value   string        `json:"value" validate:"required,amount"`
	GasFee  GasParameters `json:"gas_fee"`
	Nonce   WrappedUint   `json:"nonce"`
}

func (*EVMSendNative) Tag() VariantTag { return TagEVMSendNative }
func (*EVMSendNative) isVariant()      {}

// EVMSendERC20 ERC20 代币转账。
type EVMSendERC20 struct {
	ChainID              uint64        `json:"chain_id" validate:"gt=0"`
	From                 string        `json:"from" validate:"required,evm_address"`
	To                   string        `json:"to" validate:"required,evm_address"`
	TokenContractAddress string        `json:"token_contract_address" validate:"required,evm_address"`
	Amount               string        `json:"amount" validate:"required,amount"`
	GasFee               GasParameters `json:"gas_fee"`
	Nonce                WrappedUint   `json:"nonce"`
}

func (*EVMSendERC20) Tag() VariantTag { return TagEVMSendERC20 }
func (*EVMSendERC20) isVariant()      {}

// SigningRequest 是 CreateSigningRequest 的请求信封，只能通过 Assemble 系列函数构造。
type SigningRequest struct {
	variant     Variant
	notes       *string
	vaultUUID   *string
	callbackKey *string
}

// Variant 返回唯一生效的分支。
func (r SigningRequest) Variant() Variant { return r.variant }

// IsZero 报告信封是否未经组装。
func (r SigningRequest) IsZero() bool { return r.variant == nil }

// Notes 返回交易备注。
func (r SigningRequest) Notes() (string, bool) { return deref(r.notes) }

// VaultUUID 返回指定的 vault。
func (r SigningRequest) VaultUUID() (string, bool) { return deref(r.vaultUUID) }

// CallbackClientSignerPublicKey 返回回调客户端签名者公钥。
func (r SigningRequest) CallbackClientSignerPublicKey() (string, bool) {
	return deref(r.callbackKey)
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

// EnvelopeOption 设置信封级可选字段。
type EnvelopeOption func(*SigningRequest)

// WithNotes 设置交易备注。
func WithNotes(notes string) EnvelopeOption {
	return func(r *SigningRequest) { r.notes = &notes }
}

// WithVaultUUID 指定 vault。
func WithVaultUUID(uuid string) EnvelopeOption {
	return func(r *SigningRequest) { r.vaultUUID = &uuid }
}

// WithCallbackClientSignerPublicKey 使用回调客户端签名者审批。
func WithCallbackClientSignerPublicKey(key string) EnvelopeOption {
	return func(r *SigningRequest) { r.callbackKey = &key }
}

// Record 是服务端返回的签名请求摘要。
type Record struct {
	UUID   string `json:"uuid"`
	Status string `json:"status,omitempty"`
	Notes  string `json:"notes,omitempty"`
}
