// Package motor exposes the per-motor shell commands.
package motor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/LyraLiu1208/encos-sdk/pkg/cli/sh"
	"github.com/LyraLiu1208/encos-sdk/pkg/motor"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

const statusTimeout = time.Second

func parseKind(arg string) (protocol.FeedbackKind, error) {
	switch arg {
	case "", "torque", "1":
		return protocol.FeedbackTorque, nil
	case "current", "2":
		return protocol.FeedbackCurrent, nil
	case "wide", "3":
		return protocol.FeedbackWide, nil
	case "device", "4":
		return protocol.FeedbackDevice, nil
	case "fault", "5":
		return protocol.FeedbackFault, nil
	}
	return 0, fmt.Errorf("invalid KIND %q", arg)
}

func parseFloat(c *ishell.Context, idx int, name string, def float64) (float64, bool) {
	if len(c.Args) <= idx {
		return def, true
	}
	val, err := strconv.ParseFloat(c.Args[idx], 64)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %v", name, err))
		return 0, false
	}
	return val, true
}

var (
	// ZeroCmd declares the current position as zero.
	ZeroCmd = ishell.Cmd{
		Name: "zero",
		Help: "ADDR",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			if !u.SetZeroPoint() {
				c.Err(fmt.Errorf("zero point not set"))
				return
			}
			c.Println("OK")
		},
	}

	// PosCmd commands a target position.
	PosCmd = ishell.Cmd{
		Name:    "pos",
		Aliases: []string{"p"},
		Help:    "ADDR DEG [SPEED(rpm)] [CURRENT(A)] [force]",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("DEG required"))
				return
			}
			deg, ok := parseFloat(c, 1, "DEG", 0)
			if !ok {
				return
			}
			speed, ok := parseFloat(c, 2, "SPEED", 100)
			if !ok {
				return
			}
			current, ok := parseFloat(c, 3, "CURRENT", 2)
			if !ok {
				return
			}
			mode := motor.ModeServo
			if len(c.Args) > 4 {
				switch c.Args[4] {
				case "servo":
				case "force":
					mode = motor.ModeForce
				default:
					c.Err(fmt.Errorf("invalid MODE %q", c.Args[4]))
					return
				}
			}
			if !u.SetPosition(deg, speed, current, mode) {
				c.Err(fmt.Errorf("position command refused"))
				return
			}
			c.Println("OK")
		},
	}

	// ForceCmd commands a position in force mode with default
	// stiffness and damping.
	ForceCmd = ishell.Cmd{
		Name:    "force",
		Aliases: []string{"f"},
		Help:    "ADDR DEG",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("DEG required"))
				return
			}
			deg, ok := parseFloat(c, 1, "DEG", 0)
			if !ok {
				return
			}
			if !u.SetPosition(deg, 0, 0, motor.ModeForce) {
				c.Err(fmt.Errorf("position command refused"))
				return
			}
			c.Println("OK")
		},
	}

	// VelCmd commands a target velocity.
	VelCmd = ishell.Cmd{
		Name:    "vel",
		Aliases: []string{"v"},
		Help:    "ADDR RPM [CURRENT(A)]",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("RPM required"))
				return
			}
			rpm, ok := parseFloat(c, 1, "RPM", 0)
			if !ok {
				return
			}
			current, ok := parseFloat(c, 2, "CURRENT", 2)
			if !ok {
				return
			}
			if !u.SetVelocity(rpm, current) {
				c.Err(fmt.Errorf("velocity command refused"))
				return
			}
			c.Println("OK")
		},
	}

	// StatusCmd requests one feedback frame.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "ADDR [torque|current|wide|device|fault]",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			var kindArg string
			if len(c.Args) > 1 {
				kindArg = c.Args[1]
			}
			kind, err := parseKind(kindArg)
			if err != nil {
				c.Err(err)
				return
			}
			st, ok := u.Status(context.TODO(), kind, statusTimeout)
			if !ok {
				c.Err(fmt.Errorf("motor %d did not answer", u.Addr()))
				return
			}
			sh.PrintStatus(c, st)
		},
	}

	// MonitorCmd polls status until Enter is pressed.
	MonitorCmd = ishell.Cmd{
		Name:    "monitor",
		Aliases: []string{"m"},
		Help:    "ADDR [torque|current|wide|device|fault] [INTERVAL(ms)]",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			var kindArg string
			if len(c.Args) > 1 {
				kindArg = c.Args[1]
			}
			kind, err := parseKind(kindArg)
			if err != nil {
				c.Err(err)
				return
			}
			interval := 500 * time.Millisecond
			if ms, ok := parseFloat(c, 2, "INTERVAL", 500); ok {
				interval = time.Duration(ms) * time.Millisecond
			} else {
				return
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				c.ReadLine()
				cancel()
			}()
			c.Println("monitoring, press Enter to stop")
			u.Monitor(ctx, kind, interval, func(st protocol.Status) {
				sh.PrintStatus(c, st)
			})
		},
	}

	// StopCmd stops one motor.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "ADDR",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			if !u.Stop() {
				c.Err(fmt.Errorf("stop failed"))
				return
			}
			c.Println("OK")
		},
	}

	// StopAllCmd stops every registered motor.
	StopAllCmd = ishell.Cmd{
		Name: "stopall",
		Help: "",
		Func: func(c *ishell.Context) {
			sh.ShellFrom(c).Fleet.StopAll()
			c.Println("OK")
		},
	}

	// EnableCmd re-allows commands after disable.
	EnableCmd = ishell.Cmd{
		Name: "enable",
		Help: "ADDR",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			u.Enable()
			c.Println("OK")
		},
	}

	// DisableCmd refuses further motion commands for a motor.
	DisableCmd = ishell.Cmd{
		Name: "disable",
		Help: "ADDR",
		Func: func(c *ishell.Context) {
			u, ok := sh.UnitFrom(c)
			if !ok {
				return
			}
			u.Disable()
			c.Println("OK")
		},
	}
)

func init() {
	sh.AddCmds(
		&ZeroCmd,
		&PosCmd,
		&ForceCmd,
		&VelCmd,
		&StatusCmd,
		&MonitorCmd,
		&StopCmd,
		&StopAllCmd,
		&EnableCmd,
		&DisableCmd,
	)
}
