// Package fifo carries register bus transactions between processes over a
// pair of named pipes.
//
// A [Server] owns a bus directory and forwards each request to a local
// [github.com/ardnew/softreg/transport.Transport], typically a simulated
// device or a memory-mapped window. A [Client] in another process dials
// the same directory and implements the transport interfaces, so drivers
// run unchanged on either side.
//
// # Directory Layout
//
//	<bus dir>/
//	├── host_to_device   (requests)
//	└── device_to_host   (responses)
//
// # Protocol
//
// Every message is framed as [type][len u16 LE][payload]. Addresses are
// u32 and register values u64, both little-endian:
//
//	0x01 read   [addr][count u16]     -> data or error
//	0x02 write  [addr][value]...      -> ack or error
//	0x03 data   [value]...
//	0x04 ack
//	0x05 error  [code u8][text]
//
// One message moves at most [MaxBurst] words. The error code preserves
// [github.com/ardnew/softreg/pkg.ErrInvalidValue] across the pipe; every
// other remote failure surfaces as [ErrRemote].
//
// # Usage
//
//	srv, err := fifo.Listen("/tmp/regbus", space)
//	go srv.Serve(ctx)
//
//	bus, err := fifo.Dial("/tmp/regbus")
//	defer bus.Close()
//	v, err := bus.ReadWord(0x10)
package fifo
