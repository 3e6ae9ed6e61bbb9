// Package wire implements the framed command/response protocol spoken
// between the coordinator and the target controller.
package wire

// Every frame on the link, in both directions, is
//
//	[code:1][length:4 LE][payload:length]
//
// Requests carry a command code (0x01..0x08), responses a response
// code (0x10..0x14). The protocol has no sequence numbers and no
// checksums: one request is always answered by exactly one response
// within the same transaction, and the physical link is expected to be
// short and reliable.
