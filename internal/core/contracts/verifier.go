package contracts

// SignatureVerifier checks a detached signature over raw invite bytes
// against a stored public key. The invite protocol treats it as a boolean
// oracle.
type SignatureVerifier interface {
	Verify(publicKey, message, signature []byte) bool
}
