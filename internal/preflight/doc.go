// Package preflight validates the environment before indexing a vault.
//
// The checks cover:
//   - Vault path exists and is readable
//   - Write access to the index directory under the vault
//   - Disk space on the vault filesystem (minimum 100MB)
//   - Memory availability (minimum 1GB)
//   - File descriptor limits (minimum 1024, matters for watch mode)
//   - Ollama reachability and model presence (warn-only, static fallback exists)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithEmbedder(host, model))
//	results := checker.RunAll(ctx, vaultPath)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to index
//	}
package preflight
