package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

const (
	// Name is the product name used in identifiers and headers.
	Name = "GoTMEP"
	// Version is the agent version.
	Version = "3.0.0"
	// Homepage is the project URL.
	Homepage = "https://github.com/itohio/gotmep"
)

// ServerHeader is sent with every local HTTP response.
func ServerHeader() string {
	return Name + "/" + Version
}

// UserAgent is sent with every remote push.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", Name, Version, Homepage)
}

// DeviceID derives the stable device identifier from hardware unique data.
// The data is hashed into a name based UUID and its first 32 bits are used.
func DeviceID(hardwareID []byte) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, bytes.TrimSpace(hardwareID))
	return fmt.Sprintf("%s-%08X", Name, binary.BigEndian.Uint32(u[:4]))
}

// ReadHardwareID reads hardware unique data such as /etc/machine-id. When the
// file is unavailable the host name is used instead.
func ReadHardwareID(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(bytes.TrimSpace(data)) > 0 {
		return data, nil
	}

	host, herr := os.Hostname()
	if herr != nil {
		if err == nil {
			err = fmt.Errorf("%s is empty", path)
		}
		return nil, fmt.Errorf("no hardware id: %w; hostname: %v", err, herr)
	}
	return []byte(host), nil
}
