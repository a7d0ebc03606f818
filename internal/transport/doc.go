// Package transport opens the byte endpoints the relay reads from and
// writes to: serial ports (github.com/jacobsa/go-serial), capture files,
// stdout and a discarding sink.
//
// Endpoint satisfies io.ReadWriteCloser. A serial read that times out
// returns zero bytes and a nil error; a capture file returns io.EOF at its
// end. Every other failure is a *TransportError carrying the operation, the
// path and whether the relay loop must stop:
//
//	n, err := ep.Read(buf)
//	if transport.IsFatal(err) {
//	    return err
//	}
package transport
