// Package defaults provides the embedded starter configuration for the
// reeve init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the starter configuration file. Credentials are
// referenced through environment expansion, never embedded.
//
//go:embed config.example.yaml
var ConfigYAML []byte
