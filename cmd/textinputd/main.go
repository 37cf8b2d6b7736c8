// textinputd is a text input daemon for embedded shells.
//
// It owns the editing state for the focused text field, accepts method
// calls from a UI framework over a unix socket, and bridges the Maliit
// input method server on the session bus so on-screen keyboard input
// flows into the same editing model as hardware keys.
//
//	textinputd                       Run with the default configuration
//	textinputd -config <path>        Run with an explicit config file
//	textinputd -socket <path>        Override the listening socket
//	textinputd -no-ime               Run without the input method bridge
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"textinputd/internal/config"
	"textinputd/internal/ime"
	"textinputd/internal/logging"
	"textinputd/internal/rpc"
	"textinputd/internal/textinput"
)

const version = "0.3.1"

// pumpInterval bounds the latency between an input method signal
// arriving and it being applied to the editing model.
const pumpInterval = 10 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "Path to config file (default: XDG config dir)")
	socketPath := flag.String("socket", "", "Unix socket to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	noIME := flag.Bool("no-ime", false, "Disable the input method bridge")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("textinputd %s\n", version)
		return
	}

	if err := run(*configPath, *socketPath, *logLevel, *noIME); err != nil {
		fmt.Fprintf(os.Stderr, "textinputd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, socketOverride, levelOverride string, noIME bool) error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()

	if socketOverride != "" {
		cfg.Socket.Path = socketOverride
	}
	if levelOverride != "" {
		cfg.Logging.Level = levelOverride
	}
	if noIME {
		cfg.IME.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	logging.SetDefault(logger)
	defer logger.Close()

	log := logger.Logger
	log.Info("starting", "version", version, "socket", cfg.Socket.Path)

	ctrl := textinput.NewController(log)

	var bridge *ime.Bridge
	if cfg.IME.Enabled {
		bridge = ime.NewBridge(ctrl, cfg.IMEOptions(), logger.WithComponent("ime").Logger)
		if err := bridge.Connect(); err != nil {
			// The desktop may come up without an input method server.
			// Hardware key input still works, so keep going.
			log.Warn("input method bridge unavailable", "error", err)
			bridge = nil
		} else {
			defer bridge.Close()
			ctrl.SetIMEControl(bridge)
		}
	}

	server := rpc.NewServer(rpc.Config{
		SocketPath:      cfg.Socket.Path,
		RequireSameUser: cfg.Socket.RequireSameUser,
	}, ctrl, logger.WithComponent("rpc").Logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer server.Stop()

	// Reload logging on config file changes. Socket and bus settings
	// take effect on restart.
	loader.OnChange(func(newCfg *config.Config) {
		newLogCfg, err := newCfg.LoggingConfig()
		if err != nil {
			log.Warn("config reloaded with bad logging section", "error", err)
			return
		}
		newLogger, err := logging.New(newLogCfg)
		if err != nil {
			log.Warn("config reload: logging setup failed", "error", err)
			return
		}
		logging.SetDefault(newLogger)
		newLogger.Info("configuration reloaded")
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	log.Info("ready")
	for {
		select {
		case <-ticker.C:
			if bridge != nil {
				bridge.Pump()
			}
		case err := <-loader.Errors():
			log.Warn("config watcher", "error", err)
		case sig := <-sigChan:
			log.Info("shutting down", "signal", sig.String())
			return nil
		}
	}
}
