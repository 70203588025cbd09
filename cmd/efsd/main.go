// Command efsd is the long-running daemon that reads DSMR telegrams off a
// serial link, optionally decrypts them, parses them, and dispatches
// parsed readings to registered sensors. Grounded on cmd/direwolf/main.go's
// flag-then-config-then-run structure and appserver.go's signal handling,
// reduced to this domain's single serial-in, sensors-out pipeline.
package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/gosmartmeter/efs-go/internal/config"
	"github.com/gosmartmeter/efs-go/internal/decrypt"
	"github.com/gosmartmeter/efs-go/internal/sensor"
	"github.com/gosmartmeter/efs-go/internal/telegram"
	"github.com/gosmartmeter/efs-go/internal/transport"
)

func main() {
	var configPath = pflag.StringP("config-file", "c", "efsd.yaml", "Configuration file name.")
	var overrides = config.BindFlags(pflag.CommandLine)
	pflag.Parse()

	var cfg, err = config.Load(*configPath)
	if err != nil {
		log.Fatal("loading configuration", "err", err)
	}
	overrides.Apply(cfg)

	var key [16]byte
	var encrypted bool
	if cfg.DecryptionKey != "" {
		var decoded, decodeErr = hex.DecodeString(cfg.DecryptionKey)
		if decodeErr != nil || len(decoded) != len(key) {
			log.Fatal("decryption_key must be 32 hex characters (16 bytes)", "err", decodeErr)
		}
		copy(key[:], decoded)
		encrypted = true
	}

	var reader, closer, openErr = transport.Open(cfg.Device, cfg.Baud, cfg.IdleTimeout())
	if openErr != nil {
		log.Fatal("opening serial device", "device", cfg.Device, "err", openErr)
	}
	defer closer.Close()

	var registry = sensor.NewRegistry()
	for _, mapping := range cfg.Sensors {
		var name = mapping.Name
		registry.Register(parseObisCodeOrExit(mapping.Obis), func(r sensor.Reading) {
			log.Info("reading", "sensor", name, "value", r.Value, "unit", r.Unit)
		})
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("efsd starting", "device", cfg.Device, "baud", cfg.Baud, "encrypted", encrypted)
	run(ctx, reader, registry, key, encrypted)
	log.Info("efsd shutting down")
}

// run is the daemon's main loop, split out from main so it can be driven
// by tests without a real serial device or OS signal plumbing.
func run(ctx context.Context, reader *transport.SerialReader, registry *sensor.Registry, key [16]byte, encrypted bool) {
	var buf = make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var n, err = reader.ReadTelegram(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("reading telegram", "err", err)
			continue
		}

		var payload = buf[:n]
		if encrypted {
			var plaintext, decErr = decrypt.Decrypt(key, payload)
			if decErr != nil {
				log.Warn("decrypting telegram", "err", decErr)
				continue
			}
			payload = plaintext
		}

		var parseBuf = make([]byte, len(payload))
		copy(parseBuf, payload)

		var result = telegram.ParseTelegram(parseBuf)
		switch result.Status {
		case telegram.StatusOK:
			sensor.Dispatch(result, registry, nil)
		case telegram.StatusCrcCheckFailed, telegram.StatusWriteOverflow:
			log.Error("telegram rejected", "status", result.Status)
		default:
			log.Warn("telegram rejected", "status", result.Status)
		}
	}
}

func parseObisCodeOrExit(s string) telegram.ObisCode {
	var code, ok = telegram.ParseObisCodeString(s)
	if !ok {
		log.Fatal("invalid OBIS code in sensor mapping", "obis", s)
	}
	return code
}
