package transport

import "net"

// netConnAdapter adapts net.Conn to rwc while letting Close() be owned by
// the transport's onClose callback (so the read loop and the public Close
// both agree on when the socket actually goes away).
type netConnAdapter struct {
	net.Conn
}

// AcceptRemoteTCP wraps an already-accepted net.Conn (raw TCP) as a
// Transport (spec §4.8: C8 accepts remote capture helpers over raw TCP).
func AcceptRemoteTCP(conn net.Conn, maxFrameBytes, queueDepth int) Transport {
	return newByteStreamTransport(netConnAdapter{conn}, maxFrameBytes, queueDepth, conn.Close)
}
