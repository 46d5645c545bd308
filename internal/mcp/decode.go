package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/ctxbridge/internal/errors"
)

// decode maps the tool arguments onto T by a JSON round trip. A malformed
// payload is a validation error naming the tool.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	args := req.GetArguments()
	if len(args) == 0 {
		return out, nil
	}
	b, err := json.Marshal(args)
	if err == nil {
		err = json.Unmarshal(b, &out)
	}
	if err != nil {
		return out, errors.NewValidation(fmt.Sprintf("%s: invalid arguments: %v", req.Params.Name, err))
	}
	return out, nil
}
