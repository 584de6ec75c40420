package signing

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aegis-sign/custody/pkg/apierrors"
	fieldparse "github.com/aegis-sign/custody/pkg/validator"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
		return fieldparse.ValidateAddress(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := fieldparse.ParseAmount(fl.Field().String())
		return err == nil
	})
}

// Payloads 收集调用方提供的候选分支，Assemble 要求其中恰好一个非空。
type Payloads struct {
	EVMSendNative *EVMSendNative
	EVMSendERC20  *EVMSendERC20
	EVMSendCustom *EVMSendCustom
}

func (p Payloads) populated() []Variant {
	var out []Variant
	if p.EVMSendNative != nil {
		out = append(out, p.EVMSendNative)
	}
	if p.EVMSendERC20 != nil {
		out = append(out, p.EVMSendERC20)
	}
	if p.EVMSendCustom != nil {
		out = append(out, p.EVMSendCustom)
	}
	return out
}

// Assemble 将唯一的分支负载包装为 SigningRequest。
func Assemble(p Payloads, opts ...EnvelopeOption) (SigningRequest, error) {
	variants := p.populated()
	switch len(variants) {
	case 0:
		return SigningRequest{}, apierrors.New(apierrors.CodeSchema, "signing request needs exactly one variant, got none")
	case 1:
	default:
		tags := make([]string, 0, len(variants))
		for _, v := range variants {
			tags = append(tags, string(v.Tag()))
		}
		return SigningRequest{}, apierrors.Newf(apierrors.CodeSchema,
			"signing request needs exactly one variant, got %s", strings.Join(tags, ", "))
	}
	if err := checkVariant(variants[0]); err != nil {
		return SigningRequest{}, err
	}
	req := SigningRequest{variant: variants[0]}
	for _, opt := range opts {
		opt(&req)
	}
	return req, nil
}

// AssembleFields 是 Assemble 的松散输入入口，字段名与线上消息一致。
func AssembleFields(fields map[string]any) (SigningRequest, error) {
	fs, err := newFieldSet("signing_request", fields,
		string(TagEVMSendNative), string(TagEVMSendERC20), string(TagEVMSendCustom),
		"notes", "vault_uuid", "callback_client_signer_public_key")
	if err != nil {
		return SigningRequest{}, err
	}

	var present []string
	for _, tag := range []VariantTag{TagEVMSendNative, TagEVMSendERC20, TagEVMSendCustom} {
		if _, ok := fs.lookup(string(tag)); ok {
			present = append(present, string(tag))
		}
	}
	if len(present) != 1 {
		got := "none"
		if len(present) > 0 {
			got = strings.Join(present, ", ")
		}
		return SigningRequest{}, apierrors.Newf(apierrors.CodeSchema,
			"signing request needs exactly one variant, got %s", got)
	}

	body, ok := fs.fields[present[0]].(map[string]any)
	if !ok {
		return SigningRequest{}, apierrors.Newf(apierrors.CodeValidation,
			"signing_request.%s: expected object, got %T", present[0], fs.fields[present[0]])
	}
	var p Payloads
	switch VariantTag(present[0]) {
	case TagEVMSendNative:
		p.EVMSendNative, err = BuildEVMSendNative(body)
	case TagEVMSendERC20:
		p.EVMSendERC20, err = BuildEVMSendERC20(body)
	case TagEVMSendCustom:
		p.EVMSendCustom, err = BuildEVMSendCustom(body)
	}
	if err != nil {
		return SigningRequest{}, err
	}

	var opts []EnvelopeOption
	for key, opt := range map[string]func(string) EnvelopeOption{
		"notes":                             WithNotes,
		"vault_uuid":                        WithVaultUUID,
		"callback_client_signer_public_key": WithCallbackClientSignerPublicKey,
	} {
		s, err := fs.str(key)
		if err != nil {
			return SigningRequest{}, err
		}
		if _, set := fs.lookup(key); set {
			opts = append(opts, opt(s))
		}
	}
	return Assemble(p, opts...)
}

// checkVariant 将 validator 的失败分为缺失必填字段（SchemaError）与取值非法（ValidationError）。
func checkVariant(v Variant) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.Wrap(apierrors.CodeInternal, "validate "+string(v.Tag()), err)
	}
	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "gt":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apierrors.Newf(apierrors.CodeSchema, "%s: missing required fields %s",
			v.Tag(), strings.Join(missing, ", "))
	}
	sort.Strings(invalid)
	return apierrors.Newf(apierrors.CodeValidation, "%s: invalid fields %s", v.Tag(), strings.Join(invalid, ", "))
}
