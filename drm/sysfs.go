package drm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arloliu/go-hidlink/logger"
)

// DefaultSysfsRoot is where the kernel exposes DRM connectors.
const DefaultSysfsRoot = "/sys/class/drm"

// Connector is a connected DRM connector with a readable EDID.
type Connector struct {
	// Name is the sysfs entry, e.g. "card0-DP-1".
	Name string
	// Card is the adapter device name, e.g. "card0".
	Card      string
	CardIndex uint64
	EDID      EDID
	// I2CDevice is the i2c-dev node carrying DDC for this connector, empty when there is none.
	I2CDevice string
}

// Scan lists the connected connectors under root. Connectors whose EDID cannot be
// parsed are skipped.
func Scan(root, devRoot string, l logger.Logger) ([]Connector, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("drm: scan %s: %w", root, err)
	}

	var out []Connector
	for _, entry := range entries {
		card, _, ok := strings.Cut(entry.Name(), "-")
		if !ok || !strings.HasPrefix(card, "card") {
			continue
		}
		idx, err := strconv.ParseUint(strings.TrimPrefix(card, "card"), 10, 32)
		if err != nil {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		status, err := os.ReadFile(filepath.Join(dir, "status"))
		if err != nil || string(bytes.TrimSpace(status)) != "connected" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "edid"))
		if err != nil || len(raw) == 0 {
			continue
		}

		e, err := ParseEDID(raw)
		if err != nil {
			l.Warn("skip connector with bad EDID", "connector", entry.Name(), "error", err)
			continue
		}

		c := Connector{Name: entry.Name(), Card: card, CardIndex: idx, EDID: e}
		if bus := ddcBus(dir); bus != "" {
			c.I2CDevice = filepath.Join(devRoot, bus)
		}
		out = append(out, c)
	}

	return out, nil
}

// ddcBus returns the i2c adapter name of a connector, from its ddc link or an
// i2c-N child (DisplayPort AUX channels).
func ddcBus(dir string) string {
	if target, err := os.Readlink(filepath.Join(dir, "ddc")); err == nil {
		return filepath.Base(target)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "i2c-*"))
	if err != nil || len(matches) == 0 {
		return ""
	}

	return filepath.Base(matches[0])
}

// cardExists reports whether root has an entry for card.
func cardExists(root, card string) bool {
	_, err := os.Stat(filepath.Join(root, card))
	return err == nil
}
