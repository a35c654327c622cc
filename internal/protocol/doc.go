// Package protocol implements the ESERA controller line protocol.
//
// The controller speaks a line-oriented ASCII protocol over TCP (port 5000
// by default) or a serial port. Every line the controller emits is one
// record:
//
//	1_OWD3_1|1976                                 device status (centi-scaled)
//	1_SYS1_1|9                                    controller register
//	1_KAL|1                                       keyed info (keepalive)
//	1_LST3|15:53:02                               list header
//	LST|1_OWD1|EF000019096A4026|S_0|11150|Kitchen list entry
//
// Commands travel in the other direction and are terminated by CR LF:
//
//	SET,OWD,OUT,2,0,1
//
// Writes are fire-and-forget. The controller does not correlate replies
// with commands; the effect of a write is observed through the next status
// record for the affected register.
//
// # Reading
//
// Reader splits a byte stream into records. A malformed line yields a
// *ParseError and the reader continues with the next line, so a single bad
// record never aborts the stream:
//
//	r := protocol.NewReader(conn)
//	for {
//	    rec, err := r.Next()
//	    var perr *protocol.ParseError
//	    if errors.As(err, &perr) {
//	        continue
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(rec)
//	}
//
// A Reader holds no state beyond its buffer. After a connection reset a
// fresh Reader on the new connection resumes cleanly.
package protocol
