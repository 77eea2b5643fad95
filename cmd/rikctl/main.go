/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * rikctl: command-line driver for a single ACR38/РИК-2 reader
 */

// Command rikctl is a short-lived CLI that loads a reader plugin
// through internal/session, opens the one matching device, performs one
// operation, exits. It carries no daemon mode, no PnP loop, and no
// single-instance lock — those are concerns of a long-running service,
// and this tool is neither. It always goes through the dynamic-module
// boundary (internal/readerapi, internal/session) rather than linking
// internal/reader directly, matching the design notes' "the
// dynamic-loading seam remains the primary polymorphism axis".
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/anatolyk/rik2drv/internal/config"
	"github.com/anatolyk/rik2drv/internal/hexutil"
	"github.com/anatolyk/rik2drv/internal/layout"
	"github.com/anatolyk/rik2drv/internal/logx"
	"github.com/anatolyk/rik2drv/internal/quirks"
	"github.com/anatolyk/rik2drv/internal/readerapi"
	"github.com/anatolyk/rik2drv/internal/rerr"
	"github.com/anatolyk/rik2drv/internal/session"
	"github.com/anatolyk/rik2drv/internal/traversal"
)

const usage = `usage: rikctl [flags] <verb> [args]

verbs:
  info                show the opened reader's identity and transport
  status              report card presence
  poweron             power up the card and print its ATR
  poweroff            power down the card
  xfr <hex-capdu>     exchange one C-APDU, print the R-APDU
  poll                wait up to the I/O timeout for a card-presence interrupt
  readall             walk -layout, saving every EF with a saveAs entry under -out
  markup              provision the card's file system per -layout

flags:
`

func main() {
	libPath := flag.String("lib", "", "path to a reader plugin (-buildmode=plugin .so)")
	configPath := flag.String("config", "", "path to an ini config file")
	layoutPath := flag.String("layout", "", "path to a layout JSON document")
	outDir := flag.String("out", ".", "output directory for readall")
	vidFlag := flag.String("vid", "", "override the configured VID (hex)")
	pidFlag := flag.String("pid", "", "override the configured PID (hex)")
	protoFlag := flag.String("proto", "", "ISO protocol: auto, t0, t1 (default auto)")
	ifaceFlag := flag.Int("iface", -2, "interface number hint (-1 = no preference)")
	timeoutFlag := flag.Int("timeout", 0, "I/O timeout in milliseconds")
	noDetach := flag.Bool("no-detach", false, "do not detach a competing kernel driver")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	if *libPath == "" {
		fatalArg(fmt.Errorf("-lib is required: path to a reader plugin"))
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fatalArg(err)
	}
	log := logx.NewConsole(conf.LogLevel)

	vid, pid := conf.VID, conf.PID
	if *vidFlag != "" {
		v, err := strconv.ParseUint(*vidFlag, 16, 16)
		if err != nil {
			fatalArg(fmt.Errorf("-vid: %w", err))
		}
		vid = uint16(v)
	}
	if *pidFlag != "" {
		v, err := strconv.ParseUint(*pidFlag, 16, 16)
		if err != nil {
			fatalArg(fmt.Errorf("-pid: %w", err))
		}
		pid = uint16(v)
	}

	iface := conf.Iface
	if *ifaceFlag != -2 {
		iface = *ifaceFlag
	}

	proto := readerapi.Auto
	switch *protoFlag {
	case "", "auto":
		proto = readerapi.Auto
	case "t0":
		proto = readerapi.T0
	case "t1":
		proto = readerapi.T1
	default:
		fatalArg(fmt.Errorf("-proto: %q: must be one of auto, t0, t1", *protoFlag))
	}

	// No reader-specific quirks are configured by default; Apply still
	// runs so a future [quirks] config section has somewhere to plug in.
	timeoutMs, detach := quirks.Set{}.Apply(vid, pid, conf.TimeoutMs, conf.DetachKernelDriver)
	if *timeoutFlag > 0 {
		timeoutMs = *timeoutFlag
	}
	if *noDetach {
		detach = false
	}

	params := readerapi.OpenParams{
		VID: vid, PID: pid, Iface: iface,
		DetachKernelDriver: detach, TimeoutMs: timeoutMs, Proto: proto,
	}

	sess := session.New()
	if err := sess.Load(*libPath); err != nil {
		fatal(err)
	}
	defer sess.Unload()

	if err := sess.Open(params); err != nil {
		fatal(err)
	}
	defer sess.Close()

	if verb == "readall" || verb == "markup" {
		runLayoutVerb(verb, sess, *layoutPath, *outDir, log)
		return
	}

	switch verb {
	case "info":
		i, err := sess.Info()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("vid=%04x pid=%04x backend=%s in=%#x out=%#x intr=%v product=%q manufacturer=%q\n",
			i.VID, i.PID, i.Backend, i.InAddr, i.OutAddr, i.HasIntr, i.Product, i.Manufacturer)

	case "status":
		p, err := sess.CardStatus()
		if err != nil {
			fatal(err)
		}
		fmt.Println(p)

	case "poweron":
		atr, err := sess.PowerOn()
		if err != nil {
			fatal(err)
		}
		fmt.Println(hexutil.Encode(atr))

	case "poweroff":
		if err := sess.PowerOff(); err != nil {
			fatal(err)
		}

	case "xfr":
		if len(rest) != 1 {
			fatalArg(fmt.Errorf("xfr requires exactly one hex C-APDU argument"))
		}
		capdu, err := hexutil.Decode(rest[0])
		if err != nil {
			fatalArg(fmt.Errorf("xfr: %w", err))
		}
		rapdu, err := sess.Transmit(capdu, 0)
		if err != nil {
			fatal(err)
		}
		fmt.Println(hexutil.Encode(rapdu))

	case "poll":
		log.Info("waiting for a card-presence interrupt (timeout %dms)", timeoutMs)
		ok, err := sess.WaitCardEvent(timeoutMs)
		if err != nil {
			fatal(err)
		}
		if ok {
			fmt.Println("event")
		} else {
			fmt.Println("timeout")
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runLayoutVerb(verb string, sess *session.Session, layoutPath, outDir string, log *logx.Logger) {
	if layoutPath == "" {
		fatalArg(fmt.Errorf("%s requires -layout", verb))
	}
	l, err := layout.ParseFile(layoutPath)
	if err != nil {
		if rerr.Is(err, rerr.LayoutInvalid) {
			fatalArg(err)
		}
		fatal(err)
	}

	tr := traversal.New(sess, log)

	switch verb {
	case "readall":
		atr, err := tr.ReadAll(l, outDir)
		if err != nil {
			fatal(err)
		}
		log.Info("ATR %s", hexutil.Encode(atr))
	case "markup":
		if err := tr.Markup(l); err != nil {
			fatal(err)
		}
	}
}

// fatal reports a reader-side error and exits 1, per §6's exit-code
// contract.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, "rikctl:", err)
	os.Exit(1)
}

// fatalArg reports a bad-argument error and exits 2, per §6's exit-code
// contract.
func fatalArg(err error) {
	fmt.Fprintln(os.Stderr, "rikctl:", err)
	os.Exit(2)
}
