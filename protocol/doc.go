// Package protocol defines the wire types shared by the update server and
// the update client: the newline-delimited JSON control-plane messages and
// the tagged install-location representation. The data plane has no message
// types of its own — it is an 8-byte big-endian download index followed by
// a raw byte stream.
package protocol
