package link

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"
)

// UplinkProbe is the default Associator on nodes where the OS
// supplicant owns WiFi association. One attempt is one TCP dial to the
// broker host: the link counts as up when the uplink can actually
// reach where the payloads are going.
type UplinkProbe struct {
	// Address is host:port to dial, normally the broker address.
	Address string
	// Timeout bounds a single probe (default 5s).
	Timeout time.Duration
}

// Associate dials the probe address once.
func (p *UplinkProbe) Associate(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.Address, err)
	}
	conn.Close()
	return nil
}

// NMAssociator drives WiFi association through NetworkManager. It
// consumes the configured SSID and passphrase; an empty passphrase
// joins an open network.
type NMAssociator struct {
	SSID       string
	Passphrase string
}

// Associate asks nmcli to join the configured network. nmcli returns
// non-zero while the network is out of range or the handshake fails,
// which maps directly onto the retry loop's failure branch.
func (a *NMAssociator) Associate(ctx context.Context) error {
	args := []string{"device", "wifi", "connect", a.SSID}
	if a.Passphrase != "" {
		args = append(args, "password", a.Passphrase)
	}

	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli connect %s: %w: %s",
			a.SSID, err, bytes.TrimSpace(out))
	}
	return nil
}
