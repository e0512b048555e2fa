// Package api holds the OpenAPI document served and enforced by the HTTP
// server.
package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

// GetSwagger parses the embedded document. Servers are cleared so request
// validation matches on path alone, whatever host the API is deployed behind.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	spec.Servers = nil
	return spec, nil
}

// RawSpec returns the document as written.
func RawSpec() []byte {
	return rawSpec
}
