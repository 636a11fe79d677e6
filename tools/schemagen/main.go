package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"crowdmarch/server/internal/nav"
	"crowdmarch/server/internal/world"
)

// configDocument models the operator-facing configuration surface: the
// navigation tuning file plus the world seed parameters accepted over
// the HTTP API.
type configDocument struct {
	Tuning nav.Tuning   `json:"tuning"`
	World  world.Config `json:"world"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(configDocument))
	schema.Title = "Crowdmarch Configuration"
	schema.Description = "Validates crowdmarch.yaml tuning values and world seed parameters"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}
