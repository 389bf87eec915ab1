// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed heartbeat.cue
var defaultSchema []byte

// Schema returns the embedded CUE schema source.
func Schema() []byte { return defaultSchema }

// ValidateWithCue validates a YAML configuration file against the #Config
// definition of a CUE schema file. An empty cueFile selects the embedded schema.
func ValidateWithCue(configFile, cueFile string) error {
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	schemaBytes := defaultSchema
	if cueFile != "" {
		if schemaBytes, err = os.ReadFile(cueFile); err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	return ValidateBytes(yamlBytes, schemaBytes)
}

// ValidateBytes validates YAML source against CUE schema source.
func ValidateBytes(yamlBytes, schemaBytes []byte) error {
	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schemaBytes)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Config definition")
	}
	if err := yaml.Validate(yamlBytes, def); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
