package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyAcceptsPrimarySecret(t *testing.T) {
	v := NewVerifier([]string{"S1"})
	body := []byte(`{"order_id":1,"quantity":40,"price":49}`)
	sig := ComputeSignature(body, "S1")
	assert.True(t, v.Verify(body, sig, ""))
}

func TestVerifyAcceptsRotatedSecret(t *testing.T) {
	v := NewVerifier([]string{"S1", "S2"})
	body := []byte(`{"order_id":1}`)
	sig := ComputeSignature(body, "S2")
	assert.True(t, v.Verify(body, sig, "HMAC-SHA256"))
}

func TestVerifyRejectsUnknownSecret(t *testing.T) {
	v := NewVerifier([]string{"S1", "S2"})
	body := []byte(`{"order_id":1}`)
	sig := ComputeSignature(body, "random-key")
	assert.False(t, v.Verify(body, sig, ""))
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	v := NewVerifier([]string{"S1"})
	body := []byte(`{}`)
	sig := ComputeSignature(body, "S1")
	assert.False(t, v.Verify(body, sig, "HMAC-SHA1"))
	assert.True(t, v.Verify(body, sig, "hmac-sha256"), "algorithm match is case-insensitive")
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v := NewVerifier([]string{"S1"})
	sig := ComputeSignature([]byte(`{"order_id":1}`), "S1")
	assert.False(t, v.Verify([]byte(`{"order_id":2}`), sig, ""))
}

func TestVerifyRejectsMissingSignatureOrSecrets(t *testing.T) {
	v := NewVerifier([]string{"S1"})
	assert.False(t, v.Verify([]byte(`{}`), "", ""))

	empty := NewVerifier(nil)
	assert.False(t, empty.Verify([]byte(`{}`), ComputeSignature([]byte(`{}`), "S1"), ""))
}

func TestVerifyIsCaseInsensitiveOnHexDigest(t *testing.T) {
	v := NewVerifier([]string{"S1"})
	body := []byte(`{"order_id":7}`)
	sig := ComputeSignature(body, "S1")
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}
	assert.True(t, v.Verify(body, string(upper), ""))
}
