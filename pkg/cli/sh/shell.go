// Package sh provides the ishell backed interactive shell shared by
// the command packages under cli/cmds.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/LyraLiu1208/encos-sdk/pkg/config"
	"github.com/LyraLiu1208/encos-sdk/pkg/motor"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Fleet *motor.Fleet
	Conf  *config.Config
}

const (
	shellKey = "$shell"
	prompt   = "encos > "
)

// ScanTimeout is how long scan waits for discovery responses.
const ScanTimeout = time.Second

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ScanCmd,
		&UnitsCmd,
		&ConfigCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other command providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell over the fleet. conf may be nil.
func New(fleet *motor.Fleet, conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell: ishell.New(),
		Fleet: fleet,
		Conf:  conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// AddMotor registers addr in the fleet, applying configured limits on
// first reference.
func (s *Shell) AddMotor(addr uint8) (*motor.Unit, error) {
	_, known := s.Fleet.Get(addr)
	u, err := s.Fleet.Add(addr)
	if err != nil {
		return nil, err
	}
	if !known && s.Conf != nil {
		for _, mc := range s.Conf.Motors {
			if mc.Addr == addr {
				u.SetLimits(motor.Limits{
					MaxPositionDeg: mc.MaxPositionDeg,
					MaxVelocityRPM: mc.MaxVelocityRPM,
					MaxCurrentA:    mc.MaxCurrentA,
					MaxTorqueNm:    mc.MaxTorqueNm,
				})
				break
			}
		}
	}
	return u, nil
}

// UnitFrom resolves the first command argument as a motor address.
func UnitFrom(c *ishell.Context) (*motor.Unit, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("ADDR required"))
		return nil, false
	}
	addr, err := strconv.ParseUint(c.Args[0], 10, 8)
	if err != nil {
		c.Err(fmt.Errorf("invalid ADDR: %v", err))
		return nil, false
	}
	u, err := ShellFrom(c).AddMotor(uint8(addr))
	if err != nil {
		c.Err(err)
		return nil, false
	}
	return u, true
}

// PrintJSON marshals v onto the shell output.
func PrintJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// PrintStatus prints one status record, honoring -json.
func PrintStatus(c *ishell.Context, st protocol.Status) {
	if ShellFrom(c).OutputJSON {
		PrintJSON(c, st)
		return
	}
	switch st.Kind {
	case protocol.FeedbackDevice:
		c.Printf("motor %d: temp=%.1fC volt=%.1fV\n", st.Addr, st.Temperature, st.Voltage)
	case protocol.FeedbackFault:
		c.Printf("motor %d: fault=%s\n", st.Addr, st.Fault)
	case protocol.FeedbackCurrent:
		c.Printf("motor %d: pos=%.2fdeg vel=%.1frpm cur=%.2fA temp=%.1fC\n",
			st.Addr, st.Position, st.Velocity, st.Current, st.Temperature)
	case protocol.FeedbackWide:
		c.Printf("motor %d: pos=%.2fdeg\n", st.Addr, st.Position)
	default:
		c.Printf("motor %d: pos=%.2fdeg vel=%.1frpm torque=%.2fNm temp=%.1fC\n",
			st.Addr, st.Position, st.Velocity, st.Torque, st.Temperature)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ScanCmd discovers motors on the bus.
	ScanCmd = ishell.Cmd{
		Name:    "scan",
		Aliases: []string{"discover", "l"},
		Help:    "[TIMEOUT(s)]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			timeout := ScanTimeout
			if len(c.Args) > 0 {
				secs, err := strconv.ParseFloat(c.Args[0], 64)
				if err != nil || secs <= 0 {
					c.Err(fmt.Errorf("invalid TIMEOUT %q", c.Args[0]))
					return
				}
				timeout = time.Duration(secs * float64(time.Second))
			}
			addrs, err := s.Fleet.Scan(context.TODO(), timeout)
			if err != nil {
				c.Err(err)
				return
			}
			for _, addr := range addrs {
				if _, err := s.AddMotor(addr); err != nil {
					c.Err(err)
				}
			}
			if s.OutputJSON {
				if addrs == nil {
					addrs = []uint8{}
				}
				PrintJSON(c, addrs)
				return
			}
			if len(addrs) == 0 {
				c.Println("No motors found")
				return
			}
			for _, addr := range addrs {
				c.Printf("motor %d\n", addr)
			}
		},
	}

	// UnitsCmd lists registered motors.
	UnitsCmd = ishell.Cmd{
		Name:    "units",
		Aliases: []string{"u"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			units := s.Fleet.Units()
			if s.OutputJSON {
				infos := make([]motor.Info, len(units))
				for n, u := range units {
					infos[n] = u.Info()
				}
				PrintJSON(c, infos)
				return
			}
			if len(units) == 0 {
				c.Println("No motors registered")
				return
			}
			for _, u := range units {
				info := u.Info()
				state := "enabled"
				if !info.Enabled {
					state = "disabled"
				}
				c.Printf("motor %d: %s limits(pos=%.0fdeg vel=%.0frpm cur=%.1fA)\n",
					info.Addr, state,
					info.Limits.MaxPositionDeg, info.Limits.MaxVelocityRPM, info.Limits.MaxCurrentA)
			}
		},
	}

	// ConfigCmd prints the loaded configuration.
	ConfigCmd = ishell.Cmd{
		Name: "config",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Conf == nil {
				c.Println("No config loaded")
				return
			}
			if s.OutputJSON {
				PrintJSON(c, s.Conf)
				return
			}
			c.Printf("bus: port=%q baud=%d\n", s.Conf.Bus.Port, s.Conf.Bus.BaudRate)
			if s.Conf.Telemetry.Broker != "" {
				c.Printf("telemetry: broker=%q prefix=%q\n",
					s.Conf.Telemetry.Broker, s.Conf.Telemetry.TopicPrefix)
			}
			for _, m := range s.Conf.Motors {
				c.Printf("motor %d: limits(pos=%.0fdeg vel=%.0frpm cur=%.1fA torque=%.1fNm)\n",
					m.Addr, m.MaxPositionDeg, m.MaxVelocityRPM, m.MaxCurrentA, m.MaxTorqueNm)
			}
		},
	}
)
