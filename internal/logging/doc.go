// Package logging provides file-based structured logging with rotation
// for the Temoa service. Logs are JSON lines written under the user state
// directory (~/.local/state/temoa by default) so that `temoa logs` can
// tail and pretty-print them.
//
// The HTTP service also mirrors logs to stderr; the MCP stdio server must
// not, since stdout/stderr carry the JSON-RPC stream.
package logging
