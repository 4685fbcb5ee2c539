// Package gameserver runs the synchronization protocol for connected
// participants: registration, position deltas, proximity chat, and disconnect
// cleanup. Transports (websocket, telnet, the gRPC stream) adapt their
// connections to Transport and hand them to SyncService.Serve.
package gameserver
