// Package cli provides the interactive safelog command-line client.
//
// The user logs in with a secp256k1 wallet key (read from a key file or the
// terminal). The login signature authenticates against the server; a second
// deterministic signature derives the local vault key that wraps the data
// keys of owned secrets. Keys for other users are wrapped to their announced
// encryption public key.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
