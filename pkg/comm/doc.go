// Package comm implements the serial command protocol of the lab board.
package comm

// Every command is a single ASCII opcode byte followed by its parameters
// and a one byte XOR checksum of everything sent since the opcode
// (opcode included). The board answers with ACK, NACK or CRC-ERROR,
// followed by the reply payload and a checksum of all reply bytes.
//
// Integers travel as single bytes or as 16-bit values, low byte first.
// Positive reals travel as a biased decimal exponent byte and a biased
// 16-bit mantissa, see EncodeFloat.
//
// The protocol is strictly request/reply: a single Conn must never be
// shared by concurrent callers.
