// Package relay speaks the chat server's HTTP contracts.
//
// HTTP is the client used by the directory and the reconciler:
//   - Publishing our public keys (POST /peer/{id}/keys).
//   - Fetching a peer's public keys (GET /peer/{id}/keys).
//   - Polling a peer's presence (GET /peer/{id}/status).
//   - Fetching conversation history (GET /messages/{peer}).
//
// All requests take a context. Non-2xx statuses come back as *StatusError
// wrapped in a domain error: a 404 on keys maps to domain.ErrKeyNotFound,
// everything else to domain.ErrDirectoryFetch.
//
// Server is an in-memory implementation of the same contracts plus the live
// chat socket (/ws/chat). cmd/relay runs it for local development and the
// session tests run it under httptest.
package relay
