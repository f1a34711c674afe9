package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode binds tool call arguments to a request struct of type T.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var v T
	if err := req.BindArguments(&v); err != nil {
		return v, fmt.Errorf("arguments: %w", err)
	}
	return v, nil
}
