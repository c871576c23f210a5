// Package websocket provides real-time notification streaming via WebSocket.
//
// Clients connect to /api/v1/stream/notifications, optionally with
// ?caller=<address>, and receive every indexed notification as a JSON text
// frame.
package websocket
