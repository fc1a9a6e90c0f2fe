package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// SysfsBattery reads the first battery under /sys/class/power_supply
type SysfsBattery struct {
	Root string
}

// NewSysfsBattery creates a reader rooted at the standard sysfs location
func NewSysfsBattery() *SysfsBattery {
	return &SysfsBattery{Root: "/sys/class/power_supply"}
}

// BatteryInfo returns nil, nil on hosts without a battery
func (b *SysfsBattery) BatteryInfo(ctx context.Context) (*models.BatteryInfo, error) {
	matches, err := filepath.Glob(filepath.Join(b.Root, "BAT*"))
	if err != nil || len(matches) == 0 {
		return nil, nil
	}
	dir := matches[0]

	raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
	if err != nil {
		return nil, fmt.Errorf("failed to read battery capacity: %w", err)
	}
	capacity, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse battery capacity: %w", err)
	}

	info := &models.BatteryInfo{Level: float64(capacity) / 100}
	if status, err := os.ReadFile(filepath.Join(dir, "status")); err == nil {
		s := strings.TrimSpace(string(status))
		info.Charging = s == "Charging" || s == "Full"
	}
	return info, nil
}
