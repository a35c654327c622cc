// Package device provides the Device Registry and Topic Mapper for the
// ESERA bridge.
//
// The registry is the in-memory catalogue of every device the controller
// has reported. Each device has a controller-assigned id (OWD17, SYS), a
// fixed Kind, and optionally a display name. The kind determines the
// device's channel schema: which channel keys exist, their value domain,
// whether they can be read or written, and how raw controller registers
// decode into channel values.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────┐  │
//	│  │    Registry    │   │     Kinds      │   │    Topics    │  │
//	│  │ (registry.go)  │──▶│   (kind.go)    │   │  (topic.go)  │  │
//	│  │                │   │                │   │              │  │
//	│  │ • devices      │   │ • schemas      │   │ • ESERA/N/.. │  │
//	│  │ • rename       │   │ • decode regs  │   │ • segments   │  │
//	│  │ • reverse map  │   │ • encode cmds  │   │              │  │
//	│  │ • last values  │   └────────────────┘   └──────────────┘  │
//	│  └────────────────┘                                           │
//	└──────────────────────────────────────────────────────────────┘
//
// # Topics
//
// A channel's topic is ESERA/<contno>/<segment>/<channel key>, where the
// segment is the device's name if one is assigned and its id otherwise.
// Renaming a device atomically moves all of its channels to the new
// segment; topics of other devices do not change. Two live devices never
// share a segment (ErrNameCollision).
//
// # Usage
//
//	reg := device.NewRegistry(1)
//	reg.Register("OWD17", device.KindTempHumSensor)
//	readings, err := reg.Observe(rec) // rec is a protocol.Devstatus
//	topic, err := reg.Resolve("OWD17", "temp") // ESERA/1/OWD17/temp
//	err = reg.ApplyRename("OWD17", "K9")       // ESERA/1/K9/temp from now on
//	id, key, err := reg.Reverse("ESERA/1/K9/temp")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Every mutation (registration,
// rename, last-value update) is atomic with respect to Resolve and
// Reverse.
package device
