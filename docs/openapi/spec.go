// Package openapi embeds the Case API OpenAPI document for runtime
// distribution.
package openapi

import _ "embed"

// CaseAPISpec contains the OpenAPI document for the case lifecycle HTTP API.
//
//go:embed case-api.yaml
var CaseAPISpec []byte

// Spec returns a defensive copy of the embedded Case API OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), CaseAPISpec...)
}
