// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

var (
	ErrLicenseExpired = errors.New("license has expired")
	ErrLicenseMissing = errors.New("license not found")
)

// Config identifies the operator license and the Keygen product.
type Config struct {
	Key          string
	AccountID    string
	ProductID    string
	ProductToken string
}

// Gate validates the operator license before the daemon starts serving and
// keeps the machine activation alive afterwards.
type Gate struct {
	cfg         Config
	logger      *zap.Logger
	fingerprint func() (string, error)
}

// NewGate configures the Keygen client for cfg.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	keygen.Account = cfg.AccountID
	keygen.Product = cfg.ProductID
	keygen.Token = cfg.ProductToken
	keygen.LicenseKey = cfg.Key

	return &Gate{
		cfg:         cfg,
		logger:      logger.Named("license"),
		fingerprint: Fingerprint,
	}
}

// Validate checks the license for this machine, activating it on first use.
func (g *Gate) Validate(ctx context.Context) error {
	if g.cfg.Key == "" {
		return ErrLicenseMissing
	}
	g.logger.Info("Validating license", zap.String("key_prefix", prefix(g.cfg.Key)))

	fingerprint, err := g.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	lic, err := keygen.Validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		g.logger.Info("License not activated, attempting activation")
		machine, activateErr := lic.Activate(ctx, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %w", activateErr)
		}
		g.logger.Info("License activated",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint))
	case errors.Is(err, keygen.ErrLicenseExpired):
		return ErrLicenseExpired
	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}

	if lic == nil {
		return ErrLicenseMissing
	}

	g.logger.Info("License validation successful", zap.String("license_id", lic.ID))
	return nil
}

// Heartbeat revalidates the license every interval until ctx is done.
// Failures are logged; the daemon keeps running.
func (g *Gate) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fingerprint, err := g.fingerprint()
			if err == nil {
				_, err = keygen.Validate(ctx, fingerprint)
			}
			if err != nil && ctx.Err() == nil {
				g.logger.Warn("License heartbeat failed", zap.Error(err))
				continue
			}
			g.logger.Debug("License heartbeat sent")
		}
	}
}

// Fingerprint derives a stable machine identifier from the hostname, the
// first hardware address of an active interface and the OS.
func Fingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var macs []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			macs = append(macs, iface.HardwareAddr.String())
		}
	}
	if len(macs) == 0 {
		return "", errors.New("no network interfaces found")
	}
	sort.Strings(macs)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return fingerprintOf(hostname, macs[0], runtime.GOOS), nil
}

func fingerprintOf(hostname, mac, goos string) string {
	sum := sha256.Sum256([]byte(hostname + "-" + mac + "-" + goos))
	return fmt.Sprintf("%x", sum)
}

func prefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
