package protocol

import (
	"strconv"
	"strings"
)

const (
	listPrefix    = "LST|"
	listKeyPrefix = "LST"
	statusPrefix  = "S_"

	// minListFields is LST, device, serial, status and article number.
	minListFields = 5
)

// Parse decodes a single protocol line.
//
// Trailing CR/LF characters are ignored. On failure the returned error is a
// *ParseError wrapping ErrMalformed or ErrBadValue.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, listPrefix) {
		return parseListEntry(line)
	}

	head, value, ok := strings.Cut(line, "|")
	if !ok {
		return nil, malformed(line, "missing '|' separator")
	}
	num, key, ok := strings.Cut(head, "_")
	if !ok {
		return nil, malformed(line, "missing controller number")
	}
	contno, ok := atoiStrict(num)
	if !ok {
		return nil, malformed(line, "invalid controller number")
	}

	if addr, ok := parseAddress(key); ok {
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, badValue(line, "status value is not an integer")
		}
		return Devstatus{Contno: contno, Addr: addr, Value: v}, nil
	}

	if idx, ok := strings.CutPrefix(key, listKeyPrefix); ok {
		if n, ok := atoiStrict(idx); ok {
			return ListHeader{Contno: contno, Index: n, Time: value}, nil
		}
	}

	if !validKey(key) {
		return nil, malformed(line, "invalid key")
	}
	return Info{Contno: contno, Key: key, Value: value}, nil
}

// parseListEntry decodes LST|<contno>_<dev>|<serial>|S_<n>|<artno>[|<name>].
func parseListEntry(line string) (Record, error) {
	fields := strings.Split(line, "|")
	if len(fields) < minListFields {
		return nil, malformed(line, "list entry has too few fields")
	}

	num, dev, ok := strings.Cut(fields[1], "_")
	if !ok {
		return nil, malformed(line, "list entry without controller number")
	}
	contno, ok := atoiStrict(num)
	if !ok {
		return nil, malformed(line, "invalid controller number")
	}
	addr, ok := parseAddress(dev)
	if !ok || addr.Sub != 0 {
		return nil, malformed(line, "invalid device address")
	}

	code, ok := strings.CutPrefix(fields[3], statusPrefix)
	if !ok {
		return nil, malformed(line, "invalid status field")
	}
	status, ok := atoiStrict(code)
	if !ok {
		return nil, badValue(line, "status code is not a number")
	}

	artno := strings.TrimSpace(fields[4])
	if artno == "" {
		return nil, malformed(line, "missing article number")
	}

	return ListEntry{
		Contno: contno,
		Addr:   addr,
		Serial: fields[2],
		Status: Status(status),
		Artno:  artno,
		Name:   strings.TrimSpace(strings.Join(fields[5:], "|")),
	}, nil
}

// parseAddress decodes OWD<n>[_<sub>] and SYS<n>[_<sub>].
func parseAddress(s string) (Address, bool) {
	var bus Bus
	switch {
	case strings.HasPrefix(s, string(BusOWD)):
		bus = BusOWD
	case strings.HasPrefix(s, string(BusSYS)):
		bus = BusSYS
	default:
		return Address{}, false
	}

	numStr, subStr, hasSub := strings.Cut(s[len(bus):], "_")
	num, ok := atoiStrict(numStr)
	if !ok {
		return Address{}, false
	}
	addr := Address{Bus: bus, Num: num}
	if hasSub {
		sub, ok := atoiStrict(subStr)
		if !ok || sub == 0 {
			return Address{}, false
		}
		addr.Sub = sub
	}
	return addr, true
}

// atoiStrict accepts only non-empty runs of ASCII digits.
func atoiStrict(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// validKey accepts upper-case identifiers such as KAL or DATATIME.
func validKey(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
