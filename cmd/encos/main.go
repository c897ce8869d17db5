package main

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
	"github.com/LyraLiu1208/encos-sdk/pkg/can/serialcan"
	"github.com/LyraLiu1208/encos-sdk/pkg/cli/sh"
	"github.com/LyraLiu1208/encos-sdk/pkg/config"
	"github.com/LyraLiu1208/encos-sdk/pkg/motor"
	"github.com/LyraLiu1208/encos-sdk/pkg/runtime"
	"github.com/LyraLiu1208/encos-sdk/pkg/telemetry"

	_ "github.com/LyraLiu1208/encos-sdk/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

var (
	configPath = flag.String("config", "", "Config file (YAML).")
	port       = flag.String("port", "", "Serial port of the CAN adapter.")
	baud       = flag.Int("baud", 0, "Serial baud rate.")
	loopback   = flag.Bool("loopback", false, "Use an in-process loopback bus (no hardware).")
	broker     = flag.String("broker", "", "MQTT broker URL for telemetry.")
)

func main() {
	flag.Parse()

	conf := &config.Config{}
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			glog.Exit(err)
		}
		conf = c
	} else {
		conf.Normalize()
	}
	if *port != "" {
		conf.Bus.Port = *port
	}
	if *baud > 0 {
		conf.Bus.BaudRate = *baud
	}
	if *broker != "" {
		conf.Telemetry.Broker = *broker
	}

	var bus can.Bus
	if *loopback {
		bus = can.NewLoopback()
	} else {
		if conf.Bus.Port == "" {
			glog.Exit("serial port required: use -port, -config or -loopback")
		}
		bus = serialcan.New(serialcan.Config{
			Port:      conf.Bus.Port,
			BaudRate:  conf.Bus.BaudRate,
			QueueSize: conf.Bus.QueueSize,
		})
	}
	if err := bus.Connect(); err != nil {
		glog.Exit(err)
	}

	fleet := motor.NewFleet(bus)
	for _, mc := range conf.Motors {
		u, err := fleet.Add(mc.Addr)
		if err != nil {
			glog.Exit(err)
		}
		u.SetLimits(motor.Limits{
			MaxPositionDeg: mc.MaxPositionDeg,
			MaxVelocityRPM: mc.MaxVelocityRPM,
			MaxCurrentA:    mc.MaxCurrentA,
			MaxTorqueNm:    mc.MaxTorqueNm,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := runtime.NewRunnerWith(ctx).HandleSignals()
	if conf.Telemetry.Broker != "" {
		pub, err := telemetry.NewPublisher(conf.Telemetry.Broker, conf.Telemetry.TopicPrefix)
		if err != nil {
			glog.Exit(err)
		}
		if err := pub.Connect(); err != nil {
			glog.Exit(err)
		}
		defer pub.Close()
		runner.Go(runtime.NamedRun("telemetry", telemetry.NewBridge(fleet, pub)))
	}

	shell := sh.New(fleet, conf)
	args := flag.Args()
	runner.Go(runtime.NamedRun("shell", runtime.RunFunc(func(sctx context.Context) error {
		// Shell exit shuts down the remaining runners.
		defer cancel()
		return runtime.RunWithContextCloser(sctx, shutdown{fleet: fleet, bus: bus}, func() error {
			shell.Run(args...)
			return nil
		})
	})))

	if err := runner.Wait(); err != nil {
		glog.Error(err)
	}
}

// shutdown stops every motor before releasing the bus, on normal shell
// exit and on signal-driven cancellation alike.
type shutdown struct {
	fleet *motor.Fleet
	bus   can.Bus
}

func (s shutdown) Close() error {
	s.fleet.StopAll()
	return s.bus.Close()
}
