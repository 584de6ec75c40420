package platformv1

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/aegis-sign/custody/internal/signing"
)

// RemoteError 是响应体中 error 字段的内容。
type RemoteError struct {
	Code    int32
	Message string
}

func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("platformv1: %s has no field %s", m.Descriptor().FullName(), name))
	}
	return fd
}

func setString(m protoreflect.Message, name, v string) {
	if v != "" {
		m.Set(field(m, name), protoreflect.ValueOfString(v))
	}
}

// setWrapped 写入 StringValue 包装字段；未设置的值不出现在线上。
func setWrapped(m protoreflect.Message, name, v string, set bool) {
	if !set {
		return
	}
	inner := m.Mutable(field(m, name)).Message()
	inner.Set(inner.Descriptor().Fields().ByName("value"), protoreflect.ValueOfString(v))
}

func setUint(m protoreflect.Message, name string, w signing.WrappedUint) {
	setWrapped(m, name, w.String(), w.IsSet())
}

func setGas(m protoreflect.Message, name string, gas signing.GasParameters) {
	if gas.IsZero() {
		return
	}
	g := m.Mutable(field(m, name)).Message()
	setUint(g, "max_fee", gas.MaxFee)
	setUint(g, "max_priority_fee", gas.MaxPriorityFee)
	setUint(g, "gas_limit", gas.GasLimit)
}

// EncodeCreateSigningRequest 将信封转换为 CreateSigningRequestRequest。
func EncodeCreateSigningRequest(req signing.SigningRequest) (*dynamicpb.Message, error) {
	if req.IsZero() {
		return nil, fmt.Errorf("signing request has no variant")
	}
	out := New(MsgCreateSigningRequestRequest)
	body := out.Mutable(field(out, string(req.Variant().Tag()))).Message()

	switch v := req.Variant().(type) {
	case *signing.EVMSendNative:
		body.Set(field(body, "chain_id"), protoreflect.ValueOfUint64(v.ChainID))
		setString(body, "from", v.From)
		setString(body, "to", v.To)
		setString(body, "value", v.Value)
		setGas(body, "gas_fee", v.GasFee)
		setUint(body, "nonce", v.Nonce)
	case *signing.EVMSendERC20:
		body.Set(field(body, "chain_id"), protoreflect.ValueOfUint64(v.ChainID))
		setString(body, "from", v.From)
		setString(body, "to", v.To)
		setString(body, "token_contract_address", v.TokenContractAddress)
		setString(body, "amount", v.Amount)
		setGas(body, "gas_fee", v.GasFee)
		setUint(body, "nonce", v.Nonce)
	case *signing.EVMSendCustom:
		body.Set(field(body, "chain_id"), protoreflect.ValueOfUint64(v.ChainID))
		setString(body, "from", v.From)
		setString(body, "to", v.To)
		setString(body, "value", v.Value)
		if len(v.Input) > 0 {
			body.Set(field(body, "input"), protoreflect.ValueOfBytes(append([]byte(nil), v.Input...)))
		}
		setGas(body, "gas_fee", v.GasFee)
		setUint(body, "nonce", v.Nonce)
	default:
		return nil, fmt.Errorf("unsupported variant %T", v)
	}

	notes, ok := req.Notes()
	setWrapped(out, "notes", notes, ok)
	vault, ok := req.VaultUUID()
	setWrapped(out, "vault_uuid", vault, ok)
	key, ok := req.CallbackClientSignerPublicKey()
	setWrapped(out, "callback_client_signer_public_key", key, ok)
	return out, nil
}

// EncodeGetSigningRequestDetails 构造查询请求。
func EncodeGetSigningRequestDetails(uuid string) *dynamicpb.Message {
	out := New(MsgGetSigningRequestDetailsRequest)
	setString(out, "uuid", uuid)
	return out
}

// DecodeSigningRequestResponse 解析 Create/GetDetails 共用的响应形状；error 字段非空时返回 RemoteError。
func DecodeSigningRequestResponse(resp protoreflect.Message) (*signing.Record, *RemoteError) {
	if fd := field(resp, "error"); resp.Has(fd) {
		e := resp.Get(fd).Message()
		re := &RemoteError{
			Code:    int32(e.Get(field(e, "code")).Int()),
			Message: e.Get(field(e, "message")).String(),
		}
		if re.Code != 0 || re.Message != "" {
			return nil, re
		}
	}
	rec := &signing.Record{}
	if fd := field(resp, "signing_request"); resp.Has(fd) {
		sr := resp.Get(fd).Message()
		rec.UUID = sr.Get(field(sr, "uuid")).String()
		rec.Status = sr.Get(field(sr, "status")).String()
		if nfd := field(sr, "notes"); sr.Has(nfd) {
			n := sr.Get(nfd).Message()
			rec.Notes = n.Get(n.Descriptor().Fields().ByName("value")).String()
		}
	}
	return rec, nil
}

// WrappedString 读取 StringValue 字段，供测试与调试使用。
func WrappedString(m protoreflect.Message, name string) (string, bool) {
	fd := field(m, name)
	if !m.Has(fd) {
		return "", false
	}
	inner := m.Get(fd).Message()
	return inner.Get(inner.Descriptor().Fields().ByName("value")).String(), true
}

// Variant 返回 oneof type 当前生效的字段名与消息。
func Variant(req protoreflect.Message) (string, protoreflect.Message) {
	od := req.Descriptor().Oneofs().ByName("type")
	if od == nil {
		return "", nil
	}
	fd := req.WhichOneof(od)
	if fd == nil {
		return "", nil
	}
	return string(fd.Name()), req.Get(fd).Message()
}

// Fields 将 CreateSigningRequestRequest 还原为 signing.AssembleFields 接受的字段表，只包含线上出现的字段。
func Fields(req protoreflect.Message) map[string]any {
	out := map[string]any{}
	if name, body := Variant(req); body != nil {
		out[name] = messageFields(body)
	}
	for _, name := range []string{"notes", "vault_uuid", "callback_client_signer_public_key"} {
		if v, ok := WrappedString(req, name); ok {
			out[name] = v
		}
	}
	return out
}

func messageFields(m protoreflect.Message) map[string]any {
	out := map[string]any{}
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		name := string(fd.Name())
		switch fd.Kind() {
		case protoreflect.MessageKind:
			if fd.Message().FullName() == "google.protobuf.StringValue" {
				inner := v.Message()
				out[name] = inner.Get(inner.Descriptor().Fields().ByName("value")).String()
			} else {
				out[name] = messageFields(v.Message())
			}
		case protoreflect.Uint64Kind:
			out[name] = v.Uint()
		case protoreflect.BytesKind:
			out[name] = append([]byte(nil), v.Bytes()...)
		default:
			out[name] = v.String()
		}
		return true
	})
	return out
}

// EncodeSigningRequestResponse 构造 Create/GetDetails 的成功响应；responseName 为响应消息名。
func EncodeSigningRequestResponse(responseName string, rec *signing.Record) *dynamicpb.Message {
	out := New(responseName)
	if rec == nil {
		return out
	}
	sr := out.Mutable(field(out, "signing_request")).Message()
	setString(sr, "uuid", rec.UUID)
	setString(sr, "status", rec.Status)
	setWrapped(sr, "notes", rec.Notes, rec.Notes != "")
	return out
}
