// Package transport keeps the live chat socket open.
//
// A Connection moves through idle, connecting, open, closing, closed and
// reconnecting. Inbound JSON frames go to a single handler and STATUS frames
// surface as status text.
package transport
