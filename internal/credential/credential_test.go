package credential

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/aegis-sign/custody/pkg/apierrors"
)

func TestAttachAddsHeader(t *testing.T) {
	ctx, err := Attach(context.Background(), "tok-123")
	require.NoError(t, err)

	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	require.Equal(t, []string{"tok-123"}, md.Get(HeaderKey))

	got, ok := FromOutgoing(ctx)
	require.True(t, ok)
	require.Equal(t, "tok-123", got)
}

func TestAttachKeepsExistingMetadata(t *testing.T) {
	base := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "r1")
	ctx, err := Attach(base, "tok")
	require.NoError(t, err)

	md, _ := metadata.FromOutgoingContext(ctx)
	require.Equal(t, []string{"r1"}, md.Get("x-request-id"))

	_, ok := FromOutgoing(base)
	require.False(t, ok, "parent context must not see the credential")
}

func TestAttachReplacesExistingToken(t *testing.T) {
	upstream, err := Attach(context.Background(), "upstream-token")
	require.NoError(t, err)
	upstream = metadata.AppendToOutgoingContext(upstream, "x-request-id", "r1")

	ctx, err := Attach(upstream, "per-call")
	require.NoError(t, err)

	md, _ := metadata.FromOutgoingContext(ctx)
	require.Equal(t, []string{"per-call"}, md.Get(HeaderKey))
	require.Equal(t, []string{"r1"}, md.Get("x-request-id"))

	parent, _ := metadata.FromOutgoingContext(upstream)
	require.Equal(t, []string{"upstream-token"}, parent.Get(HeaderKey))
}

func TestAttachCollapsesRawDuplicates(t *testing.T) {
	base := metadata.AppendToOutgoingContext(context.Background(), HeaderKey, "a", HeaderKey, "b")
	ctx, err := Attach(base, "c")
	require.NoError(t, err)

	md, _ := metadata.FromOutgoingContext(ctx)
	require.Equal(t, []string{"c"}, md.Get(HeaderKey))
}

func TestDetachRemovesToken(t *testing.T) {
	base := metadata.AppendToOutgoingContext(context.Background(), HeaderKey, "upstream", "x-request-id", "r1")
	ctx := Detach(base)

	_, ok := FromOutgoing(ctx)
	require.False(t, ok)
	md, _ := metadata.FromOutgoingContext(ctx)
	require.Equal(t, []string{"r1"}, md.Get("x-request-id"))

	plain := context.Background()
	require.Equal(t, plain, Detach(plain))
}

func TestAttachRejectsEmptyToken(t *testing.T) {
	for _, token := range []string{"", "   ", "\t\n"} {
		_, err := Attach(context.Background(), token)
		require.True(t, apierrors.HasCode(err, apierrors.CodeConfig), "token %q", token)
	}
	_, err := PerRPC(" ")
	require.True(t, apierrors.HasCode(err, apierrors.CodeConfig))
}

func TestAttachLeavesPayloadBytesUnchanged(t *testing.T) {
	payload := wrapperspb.String("0x544845005e42fE00a3C0E9735EEEC25Aa068b428")
	before, err := proto.MarshalOptions{Deterministic: true}.Marshal(payload)
	require.NoError(t, err)

	_, err = Attach(context.Background(), "tok")
	require.NoError(t, err)

	after, err := proto.MarshalOptions{Deterministic: true}.Marshal(payload)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestPerRPCRedacts(t *testing.T) {
	tok, err := PerRPC("super-secret")
	require.NoError(t, err)
	require.True(t, tok.RequireTransportSecurity())
	require.False(t, tok.AllowInsecure().RequireTransportSecurity())

	md, err := tok.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, "super-secret", md[HeaderKey])

	for _, s := range []string{tok.String(), fmt.Sprintf("%v", tok), fmt.Sprintf("%#v", tok)} {
		require.NotContains(t, s, "super-secret")
	}
}
