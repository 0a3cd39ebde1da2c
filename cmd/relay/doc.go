// Package main runs the in-memory pqchat server used during development and
// tests. It keeps published public keys, a ciphertext history and the live
// chat sockets.
//
// HTTP API
//
//	POST /peer/{id}/keys
//	    Publish {id}'s ML-KEM and ML-DSA public keys. The bearer token must
//	    name {id}.
//
//	GET /peer/{id}/keys
//	    Return {id}'s published keys, or 404.
//
//	GET /peer/{id}/status
//	    Return {"online": bool} for {id}'s chat socket.
//
//	GET /messages/{peer}
//	    Return the stored history between the caller and {peer}.
//
//	GET /ws/chat
//	    Upgrade to the chat socket. Encrypted envelopes are routed to their
//	    recipient and appended to history; the sender receives STATUS frames.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - The bearer token is taken as the user id. A socket without one gets a
//     STATUS:Unauthorized frame and is dropped.
//   - Requests are logged with method, path, status and duration.
//   - The default listen address is :8080.
//
// The server never sees plaintext or private keys.
package main
