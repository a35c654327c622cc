// Package esera implements the ESERA controller to MQTT bridge.
//
// An ESERA controller (ECO 2 family) speaks a line-oriented text protocol
// over TCP or a serial port. It reports 1-Wire device registers and its own
// I/O as status lines and accepts SET/GET commands. This package keeps one
// link to the controller and mirrors its devices onto MQTT topics.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   MQTT broker   │   MQTT   │  ESERA Bridge   │  TCP/serial
//	│  (subscribers)  │◄────────►│   (this pkg)    │◄────────────► Controller
//	└─────────────────┘          └─────────────────┘
//
// Inside the bridge, work is split across goroutines joined by bounded
// queues:
//
//	controller ─► readLoop ─► recordWorker ─► Bridge.handleRecord ─► publishLoop ─► MQTT
//	MQTT ─► Bridge.enqueueSet ─► setLoop ─► Dispatcher ─► writeLoop ─► controller
//
// A full queue drops the newest item and counts the drop. A stalled broker
// therefore never blocks the controller reader, and a stalled controller
// never blocks MQTT delivery.
//
// # Key Responsibilities
//
//   - Dial the controller, send the init sequence and reconnect with
//     exponential backoff
//   - Decode status records into readings through the device registry
//   - Publish readings retained under ESERA/<contno>/<device>/<channel>
//   - Learn devices and their stored names from the device list
//   - Validate set messages and encode them as controller commands
//   - Publish bridge health to ESERA/<contno>/health
//
// # Topics
//
//	ESERA/1/OWD17/temp          21.94
//	ESERA/1/K9/hum              45.5     (device OWD17 renamed to K9)
//	ESERA/1/SYS/in/ch1          1
//	ESERA/1/OWD2/set/ch3        1        (inbound: switch output 3 on)
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package esera
