package transport

import (
	"net/http"

	"github.com/ccrelay/ccrelay/internal/dispatch"
)

// doRequest executes an already-built request and adapts the http.Response
// into the shape the dispatch orchestrator expects. The response body is
// handed through uninspected on 2xx so the backend's own streaming adapter
// consumes it directly.
func doRequest(client *http.Client, req *http.Request) (*dispatch.Result, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return &dispatch.Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}
