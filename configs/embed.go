// Package configs provides the embedded configuration template for temoa.
//
// The template is embedded at build time with //go:embed so it ships in
// every distribution. `temoa config init` writes it to
// ~/.config/temoa/config.yaml as a commented starting point.
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/temoa/config.yaml)
//  3. Explicit file (--config flag)
//  4. Environment variables (TEMOA_*)
package configs

import _ "embed"

// UserConfigTemplate is the commented template written by `temoa config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
