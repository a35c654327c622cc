package protocol

import (
	"fmt"
	"strconv"
)

// Record is one decoded controller line.
type Record interface {
	// Controller returns the controller number (CONTNO) the record came from.
	Controller() int

	// Format returns the canonical protocol line without terminator.
	Format() string
}

// Bus identifies the register space of a status address.
type Bus string

// Known register spaces.
const (
	// BusOWD addresses 1-Wire devices attached to the controller.
	BusOWD Bus = "OWD"

	// BusSYS addresses the controller's own I/O registers.
	BusSYS Bus = "SYS"
)

// SystemDeviceID is the device id under which all SYS registers are grouped.
const SystemDeviceID = "SYS"

// Address is a status register address such as OWD3_1, SYS1_1 or SYS3.
type Address struct {
	Bus Bus
	Num int
	Sub int // 0 when the address carries no sub-register
}

// String returns the address in protocol notation.
func (a Address) String() string {
	if a.Sub == 0 {
		return fmt.Sprintf("%s%d", a.Bus, a.Num)
	}
	return fmt.Sprintf("%s%d_%d", a.Bus, a.Num, a.Sub)
}

// DeviceID returns the controller-assigned device id the register belongs to.
// 1-Wire registers belong to OWD<n>; every SYS register belongs to the
// controller itself.
func (a Address) DeviceID() string {
	if a.Bus == BusSYS {
		return SystemDeviceID
	}
	return fmt.Sprintf("%s%d", a.Bus, a.Num)
}

// Register returns the register key inside the owning device.
//
// For 1-Wire devices this is the sub-register ("1" for OWD3_1). For the
// controller it is the address without bus prefix ("1_1" for SYS1_1,
// "3" for SYS3).
func (a Address) Register() string {
	if a.Bus == BusSYS {
		if a.Sub == 0 {
			return strconv.Itoa(a.Num)
		}
		return fmt.Sprintf("%d_%d", a.Num, a.Sub)
	}
	return strconv.Itoa(a.Sub)
}

// Devstatus reports the raw integer value of one status register.
type Devstatus struct {
	Contno int
	Addr   Address
	Value  int64
}

// Controller implements Record.
func (d Devstatus) Controller() int { return d.Contno }

// Format implements Record.
func (d Devstatus) Format() string {
	return fmt.Sprintf("%d_%s|%d", d.Contno, d.Addr, d.Value)
}

// Well-known info keys.
const (
	KeyKeepalive = "KAL"
	KeyDataprint = "DATAPRINT"
	KeyEvent     = "EVT"
	KeyError     = "ERR"
	KeyArtno     = "ARTNO"
	KeyContno    = "CONTNO"
	KeyDate      = "DATE"
	KeyTime      = "TIME"
	KeyDatatime  = "DATATIME"
)

// Info is a keyed controller message such as 1_KAL|1 or 2_ARTNO|11340.
type Info struct {
	Contno int
	Key    string
	Value  string
}

// Controller implements Record.
func (i Info) Controller() int { return i.Contno }

// Format implements Record.
func (i Info) Format() string {
	return fmt.Sprintf("%d_%s|%s", i.Contno, i.Key, i.Value)
}

// ListHeader precedes the entries of a device list response.
type ListHeader struct {
	Contno int
	Index  int
	Time   string
}

// Controller implements Record.
func (l ListHeader) Controller() int { return l.Contno }

// Format implements Record.
func (l ListHeader) Format() string {
	return fmt.Sprintf("%d_LST%d|%s", l.Contno, l.Index, l.Time)
}

// Status is the device state code reported in list entries.
type Status int

// Status codes as reported by the controller.
const (
	StatusOnline       Status = 0
	StatusError1       Status = 1
	StatusError2       Status = 2
	StatusError3       Status = 3
	StatusOffline      Status = 5
	StatusUnconfigured Status = 10
)

// String returns the protocol notation, e.g. "S_0".
func (s Status) String() string {
	return fmt.Sprintf("S_%d", int(s))
}

// Online reports whether the device answered on the bus.
func (s Status) Online() bool {
	return s == StatusOnline
}

// ListEntry describes one device slot known to the controller.
type ListEntry struct {
	Contno int
	Addr   Address
	Serial string
	Status Status
	Artno  string
	Name   string
}

// EmptyArtno marks a list slot without a device.
const EmptyArtno = "none"

// Controller implements Record.
func (e ListEntry) Controller() int { return e.Contno }

// Format implements Record.
func (e ListEntry) Format() string {
	line := fmt.Sprintf("LST|%d_%s|%s|%s|%s", e.Contno, e.Addr, e.Serial, e.Status, e.Artno)
	if e.Name != "" {
		line += "|" + e.Name
	}
	return line
}

// Empty reports whether the entry describes an unoccupied slot.
func (e ListEntry) Empty() bool {
	return e.Artno == EmptyArtno
}
