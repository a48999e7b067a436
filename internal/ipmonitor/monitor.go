// Package ipmonitor watches the router's public addresses and tells the administrator when they change.
package ipmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron"

	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/telegram"
)

const checkTimeout = time.Minute

// Prober discovers the current public addresses.
type Prober interface {
	PublicIPs(ctx context.Context) (service.PublicIPs, error)
}

// Notifier delivers a MarkdownV2 message.
type Notifier interface {
	Send(chatID int64, text string) error
}

// Monitor compares probed addresses against a history file.
type Monitor struct {
	prober      Prober
	notifier    Notifier
	adminID     int64
	historyPath string
	cron        *cron.Cron
}

func New(prober Prober, notifier Notifier, adminID int64, historyPath string) *Monitor {
	return &Monitor{
		prober:      prober,
		notifier:    notifier,
		adminID:     adminID,
		historyPath: historyPath,
	}
}

// Start schedules checks with a cron spec such as "@every 10m". An empty spec does nothing.
// Checks stop when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		slog.Info("IP monitor disabled")
		return nil
	}

	c := cron.New()
	err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if _, err := m.CheckOnce(runCtx); err != nil {
			slog.Warn("IP check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	m.cron = c
	c.Start()
	slog.Info("IP monitor started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		c.Stop()
		slog.Info("IP monitor stopped")
	}()
	return nil
}

// CheckOnce probes once and notifies when an address differs from the stored one.
// The first run only records the addresses.
func (m *Monitor) CheckOnce(ctx context.Context) (bool, error) {
	current, err := m.prober.PublicIPs(ctx)
	if err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	if current.V4 == "" && current.V6 == "" {
		return false, errors.New("no public address found")
	}

	prev, found, err := m.load()
	if err != nil {
		slog.Warn("Failed to read IP history, starting over", "path", m.historyPath, "error", err)
	}

	// a family that could not be probed this time keeps its previous value
	if current.V4 == "" {
		current.V4 = prev.V4
	}
	if current.V6 == "" {
		current.V6 = prev.V6
	}

	if found && current == prev {
		slog.Debug("Public IP unchanged", "v4", current.V4, "v6", current.V6)
		return false, nil
	}

	if err := m.save(current); err != nil {
		return false, err
	}
	if !found {
		slog.Info("Recorded public IP", "v4", current.V4, "v6", current.V6)
		return false, nil
	}

	slog.Info("Public IP changed", "old_v4", prev.V4, "v4", current.V4, "old_v6", prev.V6, "v6", current.V6)
	if err := m.notifier.Send(m.adminID, FormatChange(prev, current)); err != nil {
		slog.Warn("Failed to send IP change notification", "error", err)
	}
	return true, nil
}

// FormatChange renders the notification text in MarkdownV2.
func FormatChange(prev, cur service.PublicIPs) string {
	var sb strings.Builder
	sb.WriteString(telegram.Bold("🌐 Public IP changed") + "\n\n")
	writeLine := func(label, old, now string) {
		if old == now {
			sb.WriteString(telegram.EscapeMarkdownV2(label+": ") + telegram.Code(orNone(now)) + "\n")
			return
		}
		sb.WriteString(telegram.EscapeMarkdownV2(label+": ") + telegram.Code(orNone(old)) +
			telegram.EscapeMarkdownV2(" → ") + telegram.Code(orNone(now)) + "\n")
	}
	writeLine("IPv4", prev.V4, cur.V4)
	writeLine("IPv6", prev.V6, cur.V6)
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (m *Monitor) load() (service.PublicIPs, bool, error) {
	var ips service.PublicIPs
	data, err := os.ReadFile(m.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return ips, false, nil
	}
	if err != nil {
		return ips, false, err
	}
	if err := json.Unmarshal(data, &ips); err != nil {
		return service.PublicIPs{}, false, err
	}
	return ips, true, nil
}

func (m *Monitor) save(ips service.PublicIPs) error {
	if err := os.MkdirAll(filepath.Dir(m.historyPath), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.Marshal(ips)
	if err != nil {
		return err
	}
	tmp := m.historyPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, m.historyPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
