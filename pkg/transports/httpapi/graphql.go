package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/failsafe-go/failsafe-go"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL posts a query to path and decodes the "data" member into out.
// A non-empty "errors" member is returned as *GraphQLError even on 200.
func (c *Client) GraphQL(ctx context.Context, op, path, query string, vars map[string]any, out any) error {
	return c.graphQL(ctx, c.executor, op, path, query, vars, out)
}

// CreateGraphQL runs a mutation that creates a resource, with the retry
// rules of Create.
func (c *Client) CreateGraphQL(ctx context.Context, op, path, mutation string, vars map[string]any, out any) error {
	return c.graphQL(ctx, c.creates, op, path, mutation, vars, out)
}

func (c *Client) graphQL(ctx context.Context, exec failsafe.Executor[*response], op, path, query string, vars map[string]any, out any) error {
	var resp graphQLResponse
	err := c.do(ctx, exec, op, http.MethodPost, path, graphQLRequest{Query: query, Variables: vars}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		gqlErr := &GraphQLError{Platform: c.name, Operation: op}
		for _, e := range resp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode %s data: %w", c.name, op, err)
	}
	return nil
}
