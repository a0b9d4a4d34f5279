// Command polyview is the CLI for inspecting a running host through
// its TCP console.
package main

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var addr string

func main() {
	root := &cobra.Command{
		Use:   "polyview",
		Short: "Inspect the shared state of a running polyview host",
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr(), "console address of the host")

	root.AddCommand(
		&cobra.Command{
			Use:   "get <type>",
			Short: "Print the payload of one state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return oneShot(fmt.Sprintf("GET %s", args[0]))
			},
		},
		&cobra.Command{
			Use:   "set <type> <json>",
			Short: "Replace the payload of one state",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("payload is not valid JSON")
				}
				return oneShot(fmt.Sprintf("SET %s %s", args[0], args[1]))
			},
		},
		&cobra.Command{
			Use:   "clear <type>",
			Short: "Remove one state entirely",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return oneShot(fmt.Sprintf("CLEAR %s", args[0]))
			},
		},
		&cobra.Command{
			Use:   "dump",
			Short: "Print every state holding a value",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return oneShot("DUMP")
			},
		},
		&cobra.Command{
			Use:   "types",
			Short: "List registered state types",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return oneShot("TYPES")
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Stream state changes until interrupted",
			Args:  cobra.NoArgs,
			RunE:  runWatch,
		},
		&cobra.Command{
			Use:   "ping",
			Short: "Check the host console is reachable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return oneShot("PING")
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultAddr() string {
	if v := os.Getenv("POLYVIEW_ADDR"); v != "" {
		return v
	}
	return "localhost:7001"
}

func dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if os.Getenv("POLYVIEW_DISABLE_TLS") == "true" {
		return dialer.Dial("tcp", addr)
	}
	// Self-signed certs for internal traffic.
	return tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: true})
}

// oneShot sends a single command and prints the reply.
func oneShot(cmd string) error {
	conn, err := dial()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(30 * time.Second))
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ERR") {
		return fmt.Errorf("%s", strings.TrimPrefix(line, "ERR "))
	}
	printReply(line)
	fmt.Fprintln(conn, "QUIT")
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, err := dial()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, "WATCH"); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "OK" {
			continue
		}
		fmt.Println(line)
	}
}

// printReply pretty-prints the JSON part of an OK reply when there is
// one.
func printReply(line string) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "OK"))
	if body == "" {
		fmt.Println("OK")
		return
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		fmt.Println(body)
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(body)
		return
	}
	fmt.Println(string(pretty))
}
