package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	smol "github.com/ink-splatters/smol-world"
)

const (
	appName     = "smol"
	historyFile = ".smol_history"
	promptMain  = "==> "

	defaultCapacity = 1 << 20
)

const banner = "smol-world heap shell\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands."

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
func blue(s string) string  { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "info":
		os.Exit(cmdInfo(os.Args[2:]))
	case "dump":
		os.Exit(cmdDump(os.Args[2:]))
	case "json":
		os.Exit(cmdJSON(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`smol-world heap tool

Usage:
  %s repl                      Interactive heap shell.
  %s info <image>              Print header and usage stats of a heap image.
  %s dump <image>              List every block in a heap image.
  %s json <image>              Print a heap image's root value as JSON.

`, appName, appName, appName, appName)
}

func loadImage(path string) (*smol.Heap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Leave room to keep working with the loaded image.
	buf := make([]byte, len(data)+defaultCapacity)
	copy(buf, data)
	return smol.Adopt(buf, uint32(len(data)))
}

func cmdInfo(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s info <image>\n", appName)
		return 2
	}
	h, err := loadImage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	printStats(h)
	return 0
}

func cmdDump(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s dump <image>\n", appName)
		return 2
	}
	h, err := loadImage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	h.Dump(os.Stdout)
	return 0
}

func cmdJSON(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s json <image>\n", appName)
		return 2
	}
	h, err := loadImage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	out, err := smol.ToJSON(h, h.Root())
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func printStats(h *smol.Heap) {
	fmt.Printf("capacity:  %d bytes\n", h.Capacity())
	fmt.Printf("used:      %d bytes\n", h.Used())
	fmt.Printf("remaining: %d bytes\n", h.Remaining())
	blocks, live := 0, 0
	h.VisitAll(func(b smol.Pos) bool { blocks++; return true })
	h.Visit(func(b smol.Pos) bool { live++; return true })
	fmt.Printf("blocks:    %d (%d reachable)\n", blocks, live)
	fmt.Printf("root:      %s\n", smol.FormatValue(h, h.Root()))
}

func cmdRepl(_ []string) int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	heap := smol.NewHeap(defaultCapacity)

	for {
		line, err := ln.Prompt(promptMain)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			fmt.Println()
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch strings.ToLower(cmd) {
		case ":quit", "quit", "exit":
			return 0
		case ":help", "help":
			printHelp()
		case "new":
			capacity := uint32(defaultCapacity)
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 31)
				if err != nil {
					fmt.Println(red("new: bad capacity"))
					continue
				}
				capacity = uint32(n)
			}
			heap = smol.NewHeap(capacity)
			fmt.Println(green(fmt.Sprintf("new heap, %d bytes", capacity)))
		case "load":
			if len(args) != 1 {
				fmt.Println(red("usage: load <file>"))
				continue
			}
			h, err := loadImage(args[0])
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			heap = h
			fmt.Println(green(fmt.Sprintf("loaded, %d bytes used", heap.Used())))
		case "save":
			if len(args) != 1 {
				fmt.Println(red("usage: save <file>"))
				continue
			}
			if err := os.WriteFile(args[0], heap.Bytes(), 0o644); err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			fmt.Println(green(fmt.Sprintf("saved %d bytes", heap.Used())))
		case "json":
			// Everything after the command is JSON text; it becomes the
			// new root.
			text := strings.TrimSpace(strings.TrimPrefix(line, cmd))
			if text == "" {
				fmt.Println(red("usage: json <text>"))
				continue
			}
			v, err := smol.FromJSON(heap, []byte(text))
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			heap.SetRoot(v)
			fmt.Println(blue(smol.FormatValue(heap, v)))
		case "jsonfile":
			if len(args) != 1 {
				fmt.Println(red("usage: jsonfile <file>"))
				continue
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			v, err := smol.FromJSON(heap, data)
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			heap.SetRoot(v)
			fmt.Println(green("root replaced"))
		case "tojson":
			out, err := smol.ToJSON(heap, heap.Root())
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			fmt.Println(blue(string(out)))
		case "root":
			fmt.Println(blue(smol.FormatValue(heap, heap.Root())))
		case "gc":
			before := heap.Used()
			heap.GarbageCollect()
			fmt.Println(green(fmt.Sprintf("collected: %d -> %d bytes", before, heap.Used())))
		case "dump":
			heap.Dump(os.Stdout)
		case "stats":
			printStats(heap)
		default:
			fmt.Printf("unknown command %q. Type :help for commands.\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Print(`REPL commands:
  new [capacity]    Fresh heap (default 1 MiB)
  load <file>       Adopt a heap image from disk
  save <file>       Write the heap image to disk
  json <text>       Parse JSON text into the heap; it becomes the root
  jsonfile <file>   Same, reading the text from a file
  tojson            Print the root as JSON
  root              Print the root value
  gc                Collect the heap in place
  dump              List every block
  stats             Capacity / usage / block census
  :quit             Exit
`)
}
