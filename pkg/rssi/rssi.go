package rssi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WirelessFile is the kernel wireless statistics table.
const WirelessFile = "/proc/net/wireless"

// ErrNoInterface is returned when the interface has no wireless statistics.
var ErrNoInterface = errors.New("wireless interface not found")

// Source reports the current signal strength in dBm.
type Source interface {
	RSSI() (int, error)
}

// Fixed always reports the same value.
type Fixed int

// RSSI returns the fixed value.
func (f Fixed) RSSI() (int, error) {
	return int(f), nil
}

// Proc reads the link level of one interface from /proc/net/wireless.
type Proc struct {
	Path      string
	Interface string // empty selects the first listed interface
}

// NewProc creates a Proc for iface.
func NewProc(iface string) *Proc {
	return &Proc{Path: WirelessFile, Interface: iface}
}

// RSSI returns the signal level of the interface.
func (p *Proc) RSSI() (int, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", p.Path, err)
	}
	defer f.Close()

	return parseWireless(f, p.Interface)
}

// parseWireless extracts the signal level column:
//
//	Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
//	 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
//	 wlan0: 0000   70.  -40.  -256        0      0      0      0      0        0
func parseWireless(r io.Reader, iface string) (int, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if iface != "" && name != iface {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, fmt.Errorf("%s: malformed statistics line", name)
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid signal level: %w", name, err)
		}
		return int(level), nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}

	if iface == "" {
		return 0, ErrNoInterface
	}
	return 0, fmt.Errorf("%w: %s", ErrNoInterface, iface)
}
