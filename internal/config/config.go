/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Configuration file loading
 */

// Package config loads rikctl's configuration file, supplying defaults
// that the CLI flags of the consuming shell may override.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/anatolyk/rik2drv/internal/logx"
)

// Configuration holds the effective [device] and [logging] settings.
type Configuration struct {
	VID              uint16 // USB Vendor ID
	PID              uint16 // USB Product ID
	Iface            int    // Interface number hint, -1 = auto
	TimeoutMs        int    // Default I/O timeout, milliseconds
	DetachKernelDriver bool // Forcibly detach a competing kernel driver
	LogLevel         logx.Level
}

// Default returns the built-in defaults, matching the ACR38's well-known
// VID/PID and a conservative 2-second timeout.
func Default() Configuration {
	return Configuration{
		VID:                0x072F,
		PID:                0x9000,
		Iface:              -1,
		TimeoutMs:          2000,
		DetachKernelDriver: true,
		LogLevel:           logx.LevelInfo,
	}
}

// Load reads path (an ini-format file) and overlays its [device] and
// [logging] sections onto Default(). A missing file is not an error;
// Load simply returns the defaults.
func Load(path string) (Configuration, error) {
	conf := Default()

	cfg, err := ini.LooseLoad(path)
	if err != nil {
		return conf, fmt.Errorf("config: %s: %w", path, err)
	}

	dev := cfg.Section("device")
	if s := dev.Key("vid").String(); s != "" {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return conf, fmt.Errorf("config: device.vid: %w", err)
		}
		conf.VID = uint16(v)
	}
	if s := dev.Key("pid").String(); s != "" {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return conf, fmt.Errorf("config: device.pid: %w", err)
		}
		conf.PID = uint16(v)
	}
	if s := dev.Key("iface").String(); s != "" {
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return conf, fmt.Errorf("config: device.iface: %w", err)
		}
		conf.Iface = int(v)
	}
	if s := dev.Key("timeout-ms").String(); s != "" {
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return conf, fmt.Errorf("config: device.timeout-ms: %w", err)
		}
		conf.TimeoutMs = int(v)
	}
	if s := dev.Key("no-detach").String(); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return conf, fmt.Errorf("config: device.no-detach: %w", err)
		}
		conf.DetachKernelDriver = !v
	}

	if key := cfg.Section("logging").Key("level"); key.String() != "" {
		lvl, err := logx.ParseLevel(key.String())
		if err != nil {
			return conf, fmt.Errorf("config: logging.level: %w", err)
		}
		conf.LogLevel = lvl
	}

	return conf, nil
}
