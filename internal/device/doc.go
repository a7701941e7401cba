// Package device manages the registry of metering boards.
//
// A device enters the system through the MQTT registration handshake:
// the board publishes its MAC address and board number, the registry
// allocates a short public ID and a secret key, and the pair is returned
// to the board over the same topic. From then on the board is addressed
// purely by its public ID in topic names.
//
// # Identity
//
// Devices carry two identifiers. The internal ID is a UUID used as the
// primary key and in API URLs. The public ID is a short random string
// embedded in MQTT topics ("device/Ab3/online"); it is kept short so the
// firmware can build topic names in constant memory. Public ID
// collisions are handled at registration time with a bounded retry.
//
// # Client mode
//
// A board in client mode is serving its local configuration portal and
// is not listening to the broker. The IsClientModeOn flag tracks this
// server-side: it is set when the board acknowledges a clientMode
// command and cleared whenever the board next announces itself online.
//
// # Architecture
//
//	Registry (lifecycle, ID allocation)
//	    ↓
//	Repository (interface)
//	    ↓
//	SQLiteRepository (persistence)
//
// The Repository interface enables testing with fakes and keeps the
// registration logic independent of the storage engine.
package device
