package reader

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// LibNFC scans ISO14443A targets on a libnfc device.
type LibNFC struct {
	device nfc.Device

	lastUID    string
	lastFamily string
}

// Open opens a libnfc device. An empty connection string selects the first
// device libnfc finds.
func Open(connstring string) (*LibNFC, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("open nfc device %q: %w", connstring, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("init nfc device %s: %w", dev, err)
	}
	return &LibNFC{device: dev}, nil
}

// String names the device.
func (l *LibNFC) String() string {
	return l.device.String()
}

// Scan implements Scanner.
func (l *LibNFC) Scan(context.Context) (*Target, error) {
	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	targets, err := l.device.InitiatorListPassiveTargets(modulation)
	if err != nil {
		return nil, fmt.Errorf("list passive targets: %w", err)
	}

	for _, target := range targets {
		iso, ok := target.(*nfc.ISO14443aTarget)
		if !ok || iso.UIDLen == 0 || int(iso.UIDLen) > len(iso.UID) {
			continue
		}
		uid := append([]byte(nil), iso.UID[:iso.UIDLen]...)
		return &Target{UID: uid, Family: l.family(uid)}, nil
	}
	return nil, nil
}

// family looks the card up through freefare once per new UID.
func (l *LibNFC) family(uid []byte) string {
	id := hex.EncodeToString(uid)
	if id == l.lastUID {
		return l.lastFamily
	}

	family := ""
	if tags, err := freefare.GetTags(l.device); err == nil {
		for _, tag := range tags {
			if !strings.EqualFold(tag.UID(), id) {
				continue
			}
			switch tag.(type) {
			case freefare.ClassicTag:
				family = "mifare-classic"
			case freefare.DESFireTag:
				family = "mifare-desfire"
			case freefare.UltralightTag:
				family = "mifare-ultralight"
			}
			break
		}
	}
	l.lastUID, l.lastFamily = id, family
	return family
}

// Close releases the device.
func (l *LibNFC) Close() error {
	return l.device.Close()
}
