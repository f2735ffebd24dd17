// Command generate-schema writes the JSON schema of the httpfileserv
// configuration file.
//
// Usage:
//
//	generate-schema [-o config.schema.json] [-comments ./pkg/config]
//
// Property names follow the yaml tags, so the schema validates the same
// files config.Load reads. When -comments points at the config package
// sources (run from the repository root), field doc comments become
// property descriptions. "-o -" writes to stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/httpfileserv/pkg/config"
)

const modulePath = "github.com/marmos91/httpfileserv"

func main() {
	output := flag.String("o", "config.schema.json", "Output file, or - for stdout")
	commentsDir := flag.String("comments", "./pkg/config", "Config package sources for descriptions (empty to skip)")
	flag.Parse()

	schema, err := generate(*commentsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}
	schemaJSON = append(schemaJSON, '\n')

	if *output == "-" {
		_, _ = os.Stdout.Write(schemaJSON)
		return
	}

	if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}

// generate reflects config.Config into a schema. commentsDir is optional;
// a missing directory only drops the descriptions.
func generate(commentsDir string) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		// Inline every section; the file is small enough to read flat
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}

	if commentsDir != "" {
		if _, err := os.Stat(commentsDir); err == nil {
			if err := reflector.AddGoComments(modulePath, commentsDir); err != nil {
				return nil, fmt.Errorf("failed to read doc comments from %s: %w", commentsDir, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Warning: %s not found, descriptions omitted\n", commentsDir)
		}
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = jsonschema.ID("https://" + modulePath + "/config.schema.json")
	schema.Title = "httpfileserv Configuration"
	schema.Description = "Configuration schema for the httpfileserv static file server"
	schema.Version = "1.0.0"

	return schema, nil
}
