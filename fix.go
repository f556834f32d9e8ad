package main

import (
	"fmt"
	"os"

	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/store/file"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/logger"
)

// fixSessions owns the acceptor (buy side) and initiator (sell side).
type fixSessions struct {
	acceptor  *quickfix.Acceptor
	initiator *quickfix.Initiator
}

func (s *fixSessions) Stop() {
	if s.acceptor != nil {
		s.acceptor.Stop()
	}
	if s.initiator != nil {
		s.initiator.Stop()
	}
}

func startFIX(app quickfix.Application, cfg *config.Config, log *zap.Logger) (*fixSessions, error) {
	logFactory := logger.NewFIXLogFactory(log)
	s := &fixSessions{}

	if cfg.FIXSettingsPath != "" {
		settings, err := loadSettings(cfg.FIXSettingsPath)
		if err != nil {
			return nil, err
		}
		s.acceptor, err = quickfix.NewAcceptor(app, storeFactory(settings), settings, logFactory)
		if err != nil {
			return nil, fmt.Errorf("create acceptor: %w", err)
		}
		if err := s.acceptor.Start(); err != nil {
			return nil, fmt.Errorf("start acceptor: %w", err)
		}
		log.Info("fix acceptor started", zap.String("settings", cfg.FIXSettingsPath))
	}

	if cfg.FIXInitiatorSettingsPath != "" {
		settings, err := loadSettings(cfg.FIXInitiatorSettingsPath)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.initiator, err = quickfix.NewInitiator(app, storeFactory(settings), settings, logFactory)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("create initiator: %w", err)
		}
		if err := s.initiator.Start(); err != nil {
			s.Stop()
			return nil, fmt.Errorf("start initiator: %w", err)
		}
		log.Info("fix initiator started", zap.String("settings", cfg.FIXInitiatorSettingsPath))
	}

	if s.acceptor == nil && s.initiator == nil {
		return nil, fmt.Errorf("no FIX settings configured")
	}
	return s, nil
}

func loadSettings(path string) (*quickfix.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fix settings: %w", err)
	}
	defer f.Close()
	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		return nil, fmt.Errorf("parse fix settings %s: %w", path, err)
	}
	return settings, nil
}

// storeFactory persists session sequence numbers when FileStorePath is set.
func storeFactory(settings *quickfix.Settings) quickfix.MessageStoreFactory {
	if settings.GlobalSettings().HasSetting("FileStorePath") {
		return file.NewStoreFactory(settings)
	}
	return quickfix.NewMemoryStoreFactory()
}
