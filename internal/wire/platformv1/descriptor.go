// Package platformv1 内嵌 mpcvault.platform.v1 的消息描述，并在领域类型与 dynamicpb 消息之间转换。
package platformv1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	Package     = "mpcvault.platform.v1"
	ServiceName = Package + ".PlatformAPI"

	// 完整方法名，用于 grpc.ClientConn.Invoke。
	MethodCreateSigningRequest     = "/" + ServiceName + "/CreateSigningRequest"
	MethodGetSigningRequestDetails = "/" + ServiceName + "/GetSigningRequestDetails"

	// FileName 是描述文件路径，与 docs/api/proto 下的 .proto 文件一致。
	FileName = "mpcvault/platform/v1/api.proto"

	wrappersFile = "google/protobuf/wrappers.proto"
	stringValue  = ".google.protobuf.StringValue"
)

// 消息名。
const (
	MsgEVMGas                           = "EVMGas"
	MsgEVMSendNative                    = "EVMSendNative"
	MsgEVMSendERC20                     = "EVMSendERC20"
	MsgEVMSendCustom                    = "EVMSendCustom"
	MsgCreateSigningRequestRequest      = "CreateSigningRequestRequest"
	MsgCreateSigningRequestResponse     = "CreateSigningRequestResponse"
	MsgGetSigningRequestDetailsRequest  = "GetSigningRequestDetailsRequest"
	MsgGetSigningRequestDetailsResponse = "GetSigningRequestDetailsResponse"
	MsgSigningRequest                   = "SigningRequest"
	MsgError                            = "Error"
)

var (
	typeString = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	typeBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
	typeUint64 = descriptorpb.FieldDescriptorProto_TYPE_UINT64.Enum()
	typeInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum()
	typeMsg    = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	optional   = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
)

func scalar(name string, num int32, typ *descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    optional,
		Type:     typ,
		JsonName: proto.String(jsonName(name)),
	}
}

func message(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, num, typeMsg)
	f.TypeName = proto.String(typeName)
	return f
}

func local(msg string) string { return "." + Package + "." + msg }

func oneofMember(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(0)
	return f
}

func jsonName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	gas := message("gas_fee", 0, local(MsgEVMGas))
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String(Package),
		Dependency: []string{wrappersFile},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/aegis-sign/custody/internal/wire/platformv1"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String(MsgEVMGas),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("max_fee", 1, stringValue),
					message("max_priority_fee", 2, stringValue),
					message("gas_limit", 3, stringValue),
				},
			},
			{
				Name: proto.String(MsgEVMSendNative),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("chain_id", 1, typeUint64),
					scalar("from", 2, typeString),
					scalar("to", 3, typeString),
					scalar("value", 4, typeString),
					withNumber(gas, 5),
					message("nonce", 6, stringValue),
				},
			},
			{
				Name: proto.String(MsgEVMSendERC20),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("chain_id", 1, typeUint64),
					scalar("from", 2, typeString),
					scalar("to", 3, typeString),
					scalar("token_contract_address", 4, typeString),
					scalar("amount", 5, typeString),
					withNumber(gas, 6),
					message("nonce", 7, stringValue),
				},
			},
			{
				Name: proto.String(MsgEVMSendCustom),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("chain_id", 1, typeUint64),
					scalar("from", 2, typeString),
					scalar("to", 3, typeString),
					scalar("value", 4, typeString),
					scalar("input", 5, typeBytes),
					withNumber(gas, 6),
					message("nonce", 7, stringValue),
				},
			},
			{
				Name: proto.String(MsgCreateSigningRequestRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					oneofMember(message("evm_send_native", 1, local(MsgEVMSendNative))),
					oneofMember(message("evm_send_erc20", 2, local(MsgEVMSendERC20))),
					oneofMember(message("evm_send_custom", 3, local(MsgEVMSendCustom))),
					message("notes", 20, stringValue),
					message("vault_uuid", 21, stringValue),
					message("callback_client_signer_public_key", 22, stringValue),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("type")}},
			},
			{
				Name: proto.String(MsgError),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("code", 1, typeInt32),
					scalar("message", 2, typeString),
				},
			},
			{
				Name: proto.String(MsgSigningRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("uuid", 1, typeString),
					scalar("status", 2, typeString),
					message("notes", 3, stringValue),
				},
			},
			{
				Name: proto.String(MsgCreateSigningRequestResponse),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("error", 1, local(MsgError)),
					message("signing_request", 2, local(MsgSigningRequest)),
				},
			},
			{
				Name: proto.String(MsgGetSigningRequestDetailsRequest),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("uuid", 1, typeString),
				},
			},
			{
				Name: proto.String(MsgGetSigningRequestDetailsResponse),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("error", 1, local(MsgError)),
					message("signing_request", 2, local(MsgSigningRequest)),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("PlatformAPI"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("CreateSigningRequest"),
						InputType:  proto.String(local(MsgCreateSigningRequestRequest)),
						OutputType: proto.String(local(MsgCreateSigningRequestResponse)),
					},
					{
						Name:       proto.String("GetSigningRequestDetails"),
						InputType:  proto.String(local(MsgGetSigningRequestDetailsRequest)),
						OutputType: proto.String(local(MsgGetSigningRequestDetailsResponse)),
					},
				},
			},
		},
	}
}

func withNumber(f *descriptorpb.FieldDescriptorProto, num int32) *descriptorpb.FieldDescriptorProto {
	c := proto.Clone(f).(*descriptorpb.FieldDescriptorProto)
	c.Number = proto.Int32(num)
	return c
}

// File 是构建完成的文件描述，进程内只构建一次。
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("platformv1: build descriptor: %v", err))
	}
	File = fd
}

// Descriptor 按短名查找消息描述，未知名称会 panic。
func Descriptor(name string) protoreflect.MessageDescriptor {
	md := File.Messages().ByName(protoreflect.Name(name))
	if md == nil {
		panic("platformv1: unknown message " + name)
	}
	return md
}

// New 创建指定消息的空实例。
func New(name string) *dynamicpb.Message {
	return dynamicpb.NewMessage(Descriptor(name))
}

// FileDescriptorProto 返回描述的副本，供文档与兼容性测试比对。
func FileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return protodesc.ToFileDescriptorProto(File)
}
