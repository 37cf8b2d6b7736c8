// textinputctl is the control CLI for textinputd.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/jsonrpc2"

	"textinputd/internal/config"
	"textinputd/internal/textinput"
)

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon socket path (overrides config)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "set-client":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: textinputctl set-client <id> [action] [input-type]")
			os.Exit(1)
		}
		cmdSetClient(flag.Args()[1:])
	case "set-state":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: textinputctl set-state <text> [base] [extent]")
			os.Exit(1)
		}
		cmdSetState(flag.Args()[1:])
	case "show":
		cmdSimple(textinput.MethodShow)
	case "hide":
		cmdSimple(textinput.MethodHide)
	case "clear-client":
		cmdSimple(textinput.MethodClearClient)
	case "watch":
		cmdWatch()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `textinputctl - Control utility for textinputd

Usage: textinputctl [options] <command> [args]

Commands:
  status                              Check whether the daemon is reachable
  set-client <id> [action] [type]     Attach an editing client
  set-state <text> [base] [extent]    Push editing state for the client
  show                                Show the on-screen keyboard
  hide                                Hide the on-screen keyboard
  clear-client                        Detach the editing client
  watch                               Print daemon notifications as they arrive
  help                                Show this help message

Options:
  -config <path>  Path to config file
  -socket <path>  Daemon socket path`)
}

func socket() string {
	if *socketPath != "" {
		return *socketPath
	}
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg.Socket.Path
}

// dial connects to the daemon and returns a client connection. The
// handler only matters for watch; everything else ignores notifications.
func dial(handler jsonrpc2.Handler) *jsonrpc2.Conn {
	netConn, err := net.Dial("unix", socket())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to daemon: %v\n", err)
		os.Exit(1)
	}
	if handler == nil {
		handler = jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
			return nil, nil
		})
	}
	return jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VSCodeObjectCodec{}), handler)
}

func call(conn *jsonrpc2.Conn, method string, params any) {
	if err := conn.Call(context.Background(), method, params, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStatus() {
	conn := dial(nil)
	defer conn.Close()
	fmt.Printf("Daemon reachable at %s\n", socket())
}

func cmdSetClient(args []string) {
	var id int
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid client id: %s\n", args[0])
		os.Exit(1)
	}

	cfg := map[string]any{}
	if len(args) >= 2 {
		cfg["inputAction"] = args[1]
	}
	if len(args) >= 3 {
		cfg["inputType"] = map[string]any{"name": args[2]}
	}

	conn := dial(nil)
	defer conn.Close()
	call(conn, textinput.MethodSetClient, []any{id, cfg})
	fmt.Printf("Client %d attached\n", id)
}

func cmdSetState(args []string) {
	base, extent := -1, -1
	if len(args) >= 2 {
		fmt.Sscanf(args[1], "%d", &base)
	}
	if len(args) >= 3 {
		fmt.Sscanf(args[2], "%d", &extent)
	}

	conn := dial(nil)
	defer conn.Close()
	call(conn, textinput.MethodSetEditingState, map[string]any{
		"text":            args[0],
		"selectionBase":   base,
		"selectionExtent": extent,
	})
	fmt.Println("Editing state updated")
}

func cmdSimple(method string) {
	conn := dial(nil)
	defer conn.Close()
	call(conn, method, nil)
	fmt.Println("OK")
}

func cmdWatch() {
	handler := jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		if !req.Notif {
			return nil, nil
		}
		var params any
		if req.Params != nil {
			json.Unmarshal(*req.Params, &params)
		}
		out, _ := json.Marshal(params)
		fmt.Printf("%s %s\n", req.Method, out)
		return nil, nil
	})

	conn := dial(handler)
	defer conn.Close()

	fmt.Fprintln(os.Stderr, "Watching for notifications (Ctrl-C to stop)")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-conn.DisconnectNotify():
		fmt.Fprintln(os.Stderr, "Daemon closed the connection")
	}
}
