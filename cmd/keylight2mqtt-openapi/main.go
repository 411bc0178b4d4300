// Command keylight2mqtt-openapi writes the OpenAPI document of the bridge's
// status API. Routes are registered with stub handlers, so no broker or
// lights are needed.
//
// Usage:
//
//	go run ./cmd/keylight2mqtt-openapi > openapi.json
//	go run ./cmd/keylight2mqtt-openapi --yaml --output openapi.yaml
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/keylight2mqtt/internal/http/routes"
)

var version = "dev"

type options struct {
	output  string
	yaml    bool
	baseURL string
}

func main() {
	var opts options
	var showVersion bool
	flags := pflag.NewFlagSet("keylight2mqtt-openapi", pflag.ExitOnError)
	flags.StringVarP(&opts.output, "output", "o", "", "Output file path (default: stdout)")
	flags.BoolVar(&opts.yaml, "yaml", false, "Output as YAML instead of JSON")
	flags.StringVar(&opts.baseURL, "base-url", "", "Base URL of the status API")
	flags.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = flags.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	data, err := generate(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI spec: %v\n", err)
		os.Exit(1)
	}
	if err := write(os.Stdout, opts.output, data); err != nil {
		fmt.Fprintf(os.Stderr, "error writing OpenAPI spec: %v\n", err)
		os.Exit(1)
	}
	if opts.output != "" {
		fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", opts.output)
	}
}

// generate renders the API description as JSON or YAML
func generate(opts options) ([]byte, error) {
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(version, opts.baseURL))
	routes.Register(api, routes.StubHandlers())

	spec := api.OpenAPI()
	if opts.yaml {
		return yaml.Marshal(spec)
	}
	return json.MarshalIndent(spec, "", "  ")
}

func write(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
