package common

// AppName is the fixed prefix of the login challenge. Clients sign the exact
// bytes produced by LoginMessage, so it must never change without a
// coordinated client release.
const AppName = "Secure Log App"

// AuthorizationHeaderName carries "Bearer <token>" on authenticated requests.
const AuthorizationHeaderName = "Authorization"

// OracleSecretHeaderName carries the shared secret on calls to the PQC oracle.
const OracleSecretHeaderName = "X-Oracle-Secret"

// LoginMessage reconstructs the challenge text signed by the client.
func LoginMessage(nonce string) string {
	return "Sign in to " + AppName + " with nonce: " + nonce
}
