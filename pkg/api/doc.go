// Package api serves the multiparse HTTP API.
//
// Routes, all under /api/v1 and protected by the X-API-Key header when an
// API key is configured:
//
//	GET    /health        liveness and stored part count
//	POST   /decode        decode a multipart/x-mixed-replace body, respond NDJSON
//	POST   /capture       decode a body and store every part
//	GET    /decode/ws     websocket: binary messages in, one JSON message per part out
//	GET    /parts         list stored parts, newest first (?limit=)
//	GET    /parts/{id}    one stored part (?raw=true for the original body)
//	DELETE /parts/{id}    remove a stored part
//
// The boundary of /decode and /capture is read from the request Content-Type
// or overridden with ?boundary=. /metrics serves Prometheus metrics and is
// never authenticated.
//
// JSON responses use the APIResponse envelope. /decode writes one
// PartResponse per line and flushes after each, so a client sees a part as
// soon as the decoder emits it. /decode/ws takes its boundary from ?boundary=
// and treats any text message from the client as the end of input.
package api
