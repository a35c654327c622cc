package protocol

import (
	"fmt"
	"time"
)

// Terminator ends every command sent to the controller.
const Terminator = "\r\n"

// Command is a single controller command line without terminator.
type Command string

// Encode returns the command as it goes on the wire.
func (c Command) Encode() []byte {
	return []byte(string(c) + Terminator)
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return string(c)
}

func boolDigit(on bool) int {
	if on {
		return 1
	}
	return 0
}

// SetOWDOutput switches output channel (0-based) of 1-Wire device devno.
func SetOWDOutput(devno, channel int, on bool) Command {
	return Command(fmt.Sprintf("SET,OWD,OUT,%d,%d,%d", devno, channel, boolDigit(on)))
}

// SetSysOutput switches controller digital output port (1-based).
func SetSysOutput(port int, on bool) Command {
	return Command(fmt.Sprintf("SET,SYS,OUT,%d,%d", port, boolDigit(on)))
}

// SetSysAnalog sets the controller analog output in hundredths of a volt.
func SetSysAnalog(centivolts int64) Command {
	return Command(fmt.Sprintf("SET,SYS,OUTA,%d", centivolts))
}

// EnableDataprint makes the controller push status records unsolicited.
func EnableDataprint() Command {
	return "SET,SYS,DATAPRINT,1"
}

// SetDate sets the controller's calendar date.
func SetDate(t time.Time) Command {
	return Command("SET,SYS,DATE," + t.Format("02.01.06"))
}

// SetTime sets the controller's wall clock.
func SetTime(t time.Time) Command {
	return Command("SET,SYS,TIME," + t.Format("15:04:05"))
}

// SetDataInterval sets how often the controller repeats all status records.
func SetDataInterval(interval time.Duration) Command {
	return Command(fmt.Sprintf("SET,SYS,DATATIME,%d", int(interval/time.Second)))
}

// QueryInfo asks for the controller's identity records (ARTNO, CONTNO, ...).
func QueryInfo() Command {
	return "GET,SYS,INFO"
}

// ListDevices asks for the list of configured 1-Wire devices.
func ListDevices() Command {
	return "GET,OWB,LISTALL1"
}

// InitSequence returns the commands sent after every successful connect.
func InitSequence(now time.Time, dataInterval time.Duration) []Command {
	return []Command{
		EnableDataprint(),
		SetDate(now),
		SetTime(now),
		SetDataInterval(dataInterval),
		QueryInfo(),
		ListDevices(),
	}
}
