package main

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
)

// notifyReady 通知 systemd 服务已就绪；非 systemd 环境下为空操作
func notifyReady(lg *logger.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		lg.Info("systemd notified: ready")
	}
}

func notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// runWatchdog 启用 WatchdogSec 时按一半周期喂狗，组件不健康时停止喂狗让 systemd 重启服务
func runWatchdog(ctx context.Context, health func() error, lg *logger.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := health(); err != nil {
				lg.Warn("skip watchdog ping", zap.Error(err))
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
