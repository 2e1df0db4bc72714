// Package protocol implements the streaming recognition wire format.
// Audio is sent as binary WebSocket frames; control messages and server
// results are JSON text frames. The package decodes and validates server
// messages, encodes control messages and builds the listen URL carrying the
// session parameters.
package protocol
