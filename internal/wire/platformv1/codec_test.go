package platformv1

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/aegis-sign/custody/internal/signing"
)

const (
	testFrom = "0x544845005e42fE00a3C0E9735EEEC25Aa068b428"
	testTo   = "0x1111111111111111111111111111111111111111"
)

func TestDescriptorShape(t *testing.T) {
	svc := File.Services().ByName("PlatformAPI")
	require.NotNil(t, svc)
	require.NotNil(t, svc.Methods().ByName("CreateSigningRequest"))
	require.NotNil(t, svc.Methods().ByName("GetSigningRequestDetails"))

	req := Descriptor(MsgCreateSigningRequestRequest)
	od := req.Oneofs().ByName("type")
	require.NotNil(t, od)
	require.Equal(t, 3, od.Fields().Len())

	nonce := Descriptor(MsgEVMSendCustom).Fields().ByName("nonce")
	require.Equal(t, protoreflect.FullName("google.protobuf.StringValue"), nonce.Message().FullName())
}

func TestEncodeContractCreationLeavesDefaultsOffWire(t *testing.T) {
	req, err := signing.Assemble(signing.Payloads{EVMSendCustom: &signing.EVMSendCustom{
		ChainID: 137,
		From:    testFrom,
		Value:   "0",
	}})
	require.NoError(t, err)

	msg, err := EncodeCreateSigningRequest(req)
	require.NoError(t, err)

	name, body := Variant(msg)
	require.Equal(t, "evm_send_custom", name)
	require.Equal(t, uint64(137), body.Get(body.Descriptor().Fields().ByName("chain_id")).Uint())
	require.Equal(t, testFrom, body.Get(body.Descriptor().Fields().ByName("from")).String())
	require.False(t, body.Has(body.Descriptor().Fields().ByName("to")))
	require.False(t, body.Has(body.Descriptor().Fields().ByName("gas_fee")))
	require.False(t, body.Has(body.Descriptor().Fields().ByName("nonce")))
	require.False(t, body.Has(body.Descriptor().Fields().ByName("input")))
	_, ok := WrappedString(msg, "notes")
	require.False(t, ok)
}

func TestEncodeExplicitZeroIsPresent(t *testing.T) {
	req, err := signing.Assemble(signing.Payloads{EVMSendNative: &signing.EVMSendNative{
		ChainID: 1,
		From:    testFrom,
		To:      testTo,
		Value:   "1",
		GasFee:  signing.GasParameters{GasLimit: signing.WrapUint64(21000)},
		Nonce:   signing.WrapUint64(0),
	}}, signing.WithNotes("payroll"), signing.WithVaultUUID("vault-1"))
	require.NoError(t, err)

	msg, err := EncodeCreateSigningRequest(req)
	require.NoError(t, err)

	_, body := Variant(msg)
	nonce, ok := WrappedString(body, "nonce")
	require.True(t, ok)
	require.Equal(t, "0", nonce)

	gas := body.Get(body.Descriptor().Fields().ByName("gas_fee")).Message()
	limit, ok := WrappedString(gas, "gas_limit")
	require.True(t, ok)
	require.Equal(t, "21000", limit)
	_, ok = WrappedString(gas, "max_fee")
	require.False(t, ok)

	notes, ok := WrappedString(msg, "notes")
	require.True(t, ok)
	require.Equal(t, "payroll", notes)
	vault, ok := WrappedString(msg, "vault_uuid")
	require.True(t, ok)
	require.Equal(t, "vault-1", vault)
}

func TestEncodeBinaryRoundTrip(t *testing.T) {
	req, err := signing.Assemble(signing.Payloads{EVMSendCustom: &signing.EVMSendCustom{
		ChainID: 137,
		From:    testFrom,
		To:      testTo,
		Value:   "5",
		Input:   []byte{0xa9, 0x05, 0x9c, 0xbb},
		Nonce:   signing.WrapUint64(42),
	}})
	require.NoError(t, err)
	msg, err := EncodeCreateSigningRequest(req)
	require.NoError(t, err)

	raw, err := proto.Marshal(msg)
	require.NoError(t, err)

	decoded := New(MsgCreateSigningRequestRequest)
	require.NoError(t, proto.Unmarshal(raw, decoded))
	require.True(t, proto.Equal(msg, decoded))

	_, body := Variant(decoded)
	require.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, body.Get(body.Descriptor().Fields().ByName("input")).Bytes())
	nonce, ok := WrappedString(body, "nonce")
	require.True(t, ok)
	require.Equal(t, "42", nonce)
}

func TestEncodeJSONUsesProtoNames(t *testing.T) {
	req, err := signing.Assemble(signing.Payloads{EVMSendERC20: &signing.EVMSendERC20{
		ChainID:              1,
		From:                 testFrom,
		To:                   testTo,
		TokenContractAddress: testTo,
		Amount:               "100",
		Nonce:                signing.WrapUint64(3),
	}})
	require.NoError(t, err)
	msg, err := EncodeCreateSigningRequest(req)
	require.NoError(t, err)

	out, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	require.NoError(t, err)
	require.Contains(t, string(out), `"evm_send_erc20"`)
	require.Contains(t, string(out), `"token_contract_address"`)
	require.Regexp(t, `"nonce":\s*"3"`, string(out))
}

func TestEncodeRejectsZeroEnvelope(t *testing.T) {
	_, err := EncodeCreateSigningRequest(signing.SigningRequest{})
	require.Error(t, err)
}

func TestDecodeSigningRequestResponse(t *testing.T) {
	resp := New(MsgCreateSigningRequestResponse)
	sr := resp.Mutable(resp.Descriptor().Fields().ByName("signing_request")).Message()
	sr.Set(sr.Descriptor().Fields().ByName("uuid"), protoreflect.ValueOfString("sr-1"))
	sr.Set(sr.Descriptor().Fields().ByName("status"), protoreflect.ValueOfString("PENDING"))
	notes := sr.Mutable(sr.Descriptor().Fields().ByName("notes")).Message()
	notes.Set(notes.Descriptor().Fields().ByName("value"), protoreflect.ValueOfString("payroll"))

	rec, remote := DecodeSigningRequestResponse(resp)
	require.Nil(t, remote)
	require.Equal(t, &signing.Record{UUID: "sr-1", Status: "PENDING", Notes: "payroll"}, rec)
}

func TestDecodeRemoteError(t *testing.T) {
	resp := New(MsgGetSigningRequestDetailsResponse)
	e := resp.Mutable(resp.Descriptor().Fields().ByName("error")).Message()
	e.Set(e.Descriptor().Fields().ByName("code"), protoreflect.ValueOfInt32(4003))
	e.Set(e.Descriptor().Fields().ByName("message"), protoreflect.ValueOfString("insufficient balance"))

	rec, remote := DecodeSigningRequestResponse(resp)
	require.Nil(t, rec)
	require.Equal(t, &RemoteError{Code: 4003, Message: "insufficient balance"}, remote)

	empty := New(MsgCreateSigningRequestResponse)
	empty.Mutable(empty.Descriptor().Fields().ByName("error"))
	rec, remote = DecodeSigningRequestResponse(empty)
	require.Nil(t, remote, "an empty error message means success")
	require.NotNil(t, rec)
}

func TestEncodeGetSigningRequestDetails(t *testing.T) {
	msg := EncodeGetSigningRequestDetails("sr-1")
	require.Equal(t, "sr-1", msg.Get(msg.Descriptor().Fields().ByName("uuid")).String())
}

func TestFieldsReassemblesSameRequest(t *testing.T) {
	req, err := signing.Assemble(signing.Payloads{EVMSendCustom: &signing.EVMSendCustom{
		ChainID: 137,
		From:    testFrom,
		To:      testTo,
		Value:   "5",
		Input:   []byte{0xa9, 0x05, 0x9c, 0xbb},
		GasFee:  signing.GasParameters{MaxFee: signing.WrapUint64(30), GasLimit: signing.WrapUint64(0)},
		Nonce:   signing.WrapUint64(42),
	}}, signing.WithNotes("relay"))
	require.NoError(t, err)
	msg, err := EncodeCreateSigningRequest(req)
	require.NoError(t, err)

	fields := Fields(msg)
	body, ok := fields["evm_send_custom"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, uint64(137), body["chain_id"])
	require.Equal(t, "42", body["nonce"])
	require.Equal(t, "relay", fields["notes"])
	require.NotContains(t, fields, "vault_uuid")

	again, err := signing.AssembleFields(fields)
	require.NoError(t, err)
	reencoded, err := EncodeCreateSigningRequest(again)
	require.NoError(t, err)
	require.True(t, proto.Equal(msg, reencoded))
}

func TestFieldsOfEmptyRequest(t *testing.T) {
	fields := Fields(New(MsgCreateSigningRequestRequest))
	require.Empty(t, fields)
	_, err := signing.AssembleFields(fields)
	require.Error(t, err)
}

func TestEncodeSigningRequestResponse(t *testing.T) {
	resp := EncodeSigningRequestResponse(MsgGetSigningRequestDetailsResponse, &signing.Record{UUID: "sr-9", Status: "SIGNED"})
	rec, remote := DecodeSigningRequestResponse(resp)
	require.Nil(t, remote)
	require.Equal(t, &signing.Record{UUID: "sr-9", Status: "SIGNED"}, rec)
}
