package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "SECRETKEY123"

func TestCanonicalStringSortsAndSkipsSignature(t *testing.T) {
	params := Params{
		"vnp_TxnRef":     "ORDER_1",
		"vnp_Amount":     "10000000",
		"vnp_SecureHash": "ignored",
		"vnp_Command":    "pay",
	}
	require.Equal(t, "vnp_Amount=10000000&vnp_Command=pay&vnp_TxnRef=ORDER_1", CanonicalString(params))
}

func TestCanonicalStringDoesNotEncodeValues(t *testing.T) {
	params := Params{"vnp_OrderInfo": "Thanh toan don hang #1", "vnp_ReturnUrl": "https://shop.example/return?x=1"}
	require.Equal(t, "vnp_OrderInfo=Thanh toan don hang #1&vnp_ReturnUrl=https://shop.example/return?x=1", CanonicalString(params))
}

func TestSignMatchesManualHMAC(t *testing.T) {
	params := Params{"b": "2", "a": "1"}
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte("a=1&b=2"))
	want := hex.EncodeToString(mac.Sum(nil))

	got := Sign(params, testSecret)
	require.Equal(t, want, got)
	require.Len(t, got, 128)
	require.Equal(t, strings.ToLower(got), got)
}

func TestSignIgnoresInsertionOrderAndExistingSignature(t *testing.T) {
	a := Params{"vnp_TxnRef": "X", "vnp_Amount": "100"}
	b := Params{"vnp_Amount": "100", "vnp_TxnRef": "X", SecureHashField: "deadbeef"}
	require.Equal(t, Sign(a, testSecret), Sign(b, testSecret))
}

func TestVerifyRoundTrip(t *testing.T) {
	params := Params{"vnp_TxnRef": "ORDER_1", "vnp_Amount": "10000000", "vnp_ResponseCode": "00"}
	sig := Sign(params, testSecret)

	require.True(t, Verify(params, sig, testSecret))
	require.True(t, Verify(params, strings.ToUpper(sig), testSecret), "hex case must not matter")
}

func TestVerifyRejectsTampering(t *testing.T) {
	params := Params{"vnp_TxnRef": "ORDER_1", "vnp_Amount": "10000000"}
	sig := Sign(params, testSecret)

	tampered := params.Clone()
	tampered["vnp_Amount"] = "10000100"
	require.False(t, Verify(tampered, sig, testSecret))

	extra := params.Clone()
	extra["vnp_BankCode"] = "NCB"
	require.False(t, Verify(extra, sig, testSecret))

	require.False(t, Verify(params, sig, "other-secret"))
}

func TestVerifyMalformedSignature(t *testing.T) {
	params := Params{"a": "1"}
	require.False(t, Verify(params, "", testSecret))
	require.False(t, Verify(params, "zz-not-hex", testSecret))
	require.False(t, Verify(params, "abcd", testSecret))
	require.False(t, Verify(params, Sign(params, testSecret), ""))
	require.False(t, Verify(params, "abc", testSecret), "odd-length hex")
	require.False(t, Verify(nil, strings.Repeat("0", 128), testSecret))
	require.True(t, Verify(Params{}, Sign(nil, testSecret), testSecret))
}

func TestParamsFromValuesKeepsFirstValue(t *testing.T) {
	values := url.Values{"a": {"1", "2"}, "b": {}}
	params := ParamsFromValues(values)
	require.Equal(t, "1", params["a"])
	require.Equal(t, "", params["b"])
}

func TestWithoutLeavesOriginalUntouched(t *testing.T) {
	params := Params{"a": "1", SecureHashField: "x"}
	stripped := params.Without(SecureHashField)
	require.NotContains(t, stripped, SecureHashField)
	require.Contains(t, params, SecureHashField)
}
