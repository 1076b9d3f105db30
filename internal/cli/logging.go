package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/internal/config"
	"tradepulse/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		syncLine("Crypto sync", cfg.Crypto),
		syncLine("Futures sync", cfg.Futures),
		sectionLine("Strategy config", cfg.Strategy),
		fmt.Sprintf("Telegram: %s", presence(cfg.Telegram.Token != "" && len(cfg.Telegram.ChatIDs) > 0)),
		fmt.Sprintf("Narration: %s", presence(cfg.OpenAI.APIKey != "")),
		fmt.Sprintf("Signal journal: %s", presence(cfg.JournalDir != "")),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func syncLine(name string, sc config.SyncConf) string {
	if len(sc.Symbols) == 0 {
		return fmt.Sprintf("%s: disabled", name)
	}
	return fmt.Sprintf("%s: %d symbols, %d intervals", name, len(sc.Symbols), len(sc.Schedules()))
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: built-in defaults", name)
	}
}
