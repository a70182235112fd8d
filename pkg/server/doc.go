// Package server exposes deployments over HTTP.
//
// POST /api/deploy takes a DeployRequest and answers with a Server-Sent
// Events stream:
//
//	event: progress
//	data: {"step":1,"total":12,"message":"classified as backend (90% confidence, 3 indicators)",...}
//
//	event: complete
//	data: {"success":true,"outcome":{...}}
//
//	event: close
//	data: {}
//
// Comment frames are written every heartbeat interval while the run is
// quiet. GET /api/ws/deploy carries the same events as websocket JSON
// frames ({"type":"progress","data":{...}}); the client sends the
// DeployRequest as its first frame.
//
// A deployment runs detached from the request: when the listener goes away
// the stream stops, but provisioning and any rollback run to completion.
// Serve waits for in-flight runs during shutdown.
//
// POST /api/discover classifies a target without deploying it. GET /healthz
// and GET /metrics serve the health check and Prometheus metrics.
package server
