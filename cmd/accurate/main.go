// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/capture"
	deploy "github.com/ZaparooProject/go-accurate/config"
	"github.com/ZaparooProject/go-accurate/polling"
	"github.com/ZaparooProject/go-accurate/transport/uart"
)

type config struct {
	configPath     string
	port           string
	revision       string
	sessionLogDir  string
	measurementLog string
	recordPath     string
	replayPath     string
	baud           int
	speed          float64
	debug          bool
	list           bool
	shell          bool
	verbose        bool
	printConfig    bool
}

// Package-level flag variables
var (
	flagConfigPath     string
	flagPort           string
	flagRevision       string
	flagSessionLogDir  string
	flagMeasurementLog string
	flagRecordPath     string
	flagReplayPath     string
	flagBaud           int
	flagSpeed          float64
	flagDebug          bool
	flagList           bool
	flagShell          bool
	flagVerbose        bool
	flagPrintConfig    bool
)

func init() {
	flag.StringVar(&flagConfigPath, "config", "", "Deployment file (YAML)")
	flag.StringVar(&flagPort, "port", "", "Serial port (overrides the deployment file)")
	flag.StringVar(&flagRevision, "revision", "", "Device revision: rev-a or rev-b")
	flag.StringVar(&flagSessionLogDir, "session-log", "", "Directory for the debug session log")
	flag.StringVar(&flagMeasurementLog, "log", "", "Append measurements to this CSV file")
	flag.StringVar(&flagRecordPath, "record", "", "Record frames and commands to this capture file")
	flag.StringVar(&flagReplayPath, "replay", "", "Replay a capture file instead of opening a port")
	flag.IntVar(&flagBaud, "baud", 0, "Baud rate (default 115200)")
	flag.Float64Var(&flagSpeed, "speed", 1, "Replay speed; 0 replays as fast as possible")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagList, "list", false, "List serial ports and exit")
	flag.BoolVar(&flagShell, "shell", false, "Open an interactive command shell")
	flag.BoolVar(&flagVerbose, "verbose", false, "Include raw frame bytes in the measurement log")
	flag.BoolVar(&flagPrintConfig, "print-config", false, "Print the effective deployment file and exit")
}

func parseConfig() *config {
	cfg := &config{
		configPath:     flagConfigPath,
		port:           flagPort,
		revision:       flagRevision,
		sessionLogDir:  flagSessionLogDir,
		measurementLog: flagMeasurementLog,
		recordPath:     flagRecordPath,
		replayPath:     flagReplayPath,
		baud:           flagBaud,
		speed:          flagSpeed,
		debug:          flagDebug,
		list:           flagList,
		shell:          flagShell,
		verbose:        flagVerbose,
		printConfig:    flagPrintConfig,
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		accurate.SetDebugEnabled(true)
	}

	return cfg
}

// loadDeployment reads the deployment file, if any, and lets flags
// override it.
func loadDeployment(cfg *config) (*deploy.Config, error) {
	dep := &deploy.Config{}
	if cfg.configPath != "" {
		loaded, err := deploy.Load(cfg.configPath)
		if err != nil {
			return nil, err
		}
		dep = loaded
	}

	if cfg.port != "" {
		dep.Device.Port = cfg.port
	}
	if cfg.baud != 0 {
		dep.Device.BaudRate = cfg.baud
	}
	if cfg.revision != "" {
		dep.Device.Revision = cfg.revision
	}
	if cfg.sessionLogDir != "" {
		dep.Logging.SessionDir = cfg.sessionLogDir
	}
	if cfg.measurementLog != "" {
		dep.Logging.MeasurementLog = cfg.measurementLog
	}
	dep.Logging.Debug = dep.Logging.Debug || cfg.debug
	dep.Logging.Verbose = dep.Logging.Verbose || cfg.verbose

	if err := deploy.Validate(dep); err != nil {
		return nil, fmt.Errorf("invalid deployment: %w", err)
	}
	deploy.Normalize(dep)
	return dep, nil
}

func listPorts(out io.Writer, ports []uart.PortInfo) {
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found")
		return
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p.String())
	}
}

// openInstrument opens the serial port, or a capture when replaying.
func openInstrument(ctx context.Context, cfg *config, dep *deploy.Config) (*accurate.Instrument, error) {
	if cfg.replayPath == "" {
		return dep.Open(ctx)
	}

	reader, err := capture.Open(cfg.replayPath)
	if err != nil {
		return nil, err
	}
	if rev := reader.Header().Revision; rev != "" && rev != dep.Device.Revision && cfg.revision == "" {
		dep.Device.Revision = rev
	}
	opts, err := dep.InstrumentOptions()
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	player := capture.NewPlayer(reader, cfg.speed)
	inst, err := accurate.New(player, opts...)
	if err != nil {
		_ = player.Close()
		return nil, err
	}
	return inst, nil
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	if cfg.list {
		ports, err := uart.ListPorts()
		if err != nil {
			return err
		}
		listPorts(out, ports)
		return nil
	}

	dep, err := loadDeployment(cfg)
	if err != nil {
		return err
	}
	if cfg.printConfig {
		data, err := deploy.Marshal(dep)
		if err != nil {
			return err
		}
		_, _ = out.Write(data)
		return nil
	}
	if dep.Logging.Debug {
		accurate.SetDebugEnabled(true)
	}

	if dep.Logging.SessionDir != "" {
		path, err := accurate.InitSessionLog(dep.Logging.SessionDir)
		if err != nil {
			return err
		}
		defer func() { _ = accurate.CloseSessionLog() }()
		_, _ = fmt.Fprintf(out, "Session log: %s\n", path)
	}

	inst, err := openInstrument(ctx, cfg, dep)
	if err != nil {
		return fmt.Errorf("failed to open instrument: %w", err)
	}

	con := newConsole(out)
	if dep.Logging.MeasurementLog != "" {
		closeLog, err := con.openMeasurementLog(dep.Logging.MeasurementLog, dep.Logging.Verbose)
		if err != nil {
			_ = inst.Close()
			return err
		}
		defer closeLog()
	}
	if cfg.recordPath != "" {
		rec, err := capture.Create(cfg.recordPath, dep.Device.Revision)
		if err != nil {
			_ = inst.Close()
			return err
		}
		defer func() {
			_, _ = fmt.Fprintf(out, "Recorded %d frames to %s\n", rec.Frames(), cfg.recordPath)
			_ = rec.Close()
		}()
		con.recorder = rec
	}

	var sh *shell
	if cfg.shell {
		sh, err = newShell()
		if err != nil {
			_ = inst.Close()
			return err
		}
		con.out = sh.Stdout()
		con.quiet = true
	}

	loop := polling.NewLoop(inst, dep.PollingConfig(), con.callbacks())
	var recoverer *polling.ReconnectRecoverer
	if cfg.replayPath == "" {
		recoverer = polling.NewReconnectRecoverer(inst, func(ctx context.Context) (polling.Instrument, error) {
			return dep.Open(ctx)
		}, 0, 0)
		loop.SetRecoverer(recoverer)
	}
	defer func() {
		var current polling.Instrument = inst
		if recoverer != nil {
			current = recoverer.Instrument()
		}
		_ = current.Close()
	}()

	_, _ = fmt.Fprintf(out, "Streaming from %s (%s)\n", source(cfg, dep), dep.Summary())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := loop.Start(ctx); err != nil {
		return err
	}

	if sh != nil {
		sh.exec = loop.Execute
		sh.recorder = con.recorder
		go sh.Run(ctx, cancel)
	}

	select {
	case <-ctx.Done():
	case <-loop.Done():
	}
	err = loop.Stop()
	con.summary(loop.GetMetrics())

	if cfg.replayPath != "" && errors.Is(err, accurate.ErrTransportClosed) {
		_, _ = fmt.Fprintln(out, "Replay finished")
		return nil
	}
	return err
}

func source(cfg *config, dep *deploy.Config) string {
	if cfg.replayPath != "" {
		return cfg.replayPath
	}
	if dep.Device.Port != "" {
		return dep.Device.Port
	}
	return "USB " + dep.Device.USB.VID + ":" + dep.Device.USB.PID
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg := parseConfig()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
