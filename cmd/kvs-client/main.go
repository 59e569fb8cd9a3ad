package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvs/pkg/codec"
	"github.com/cuemby/kvs/pkg/kverr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kvs-client",
	Short: "Talk to a kvs-server over its wire protocol",
}

func init() {
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:4000", "server address")
	rootCmd.AddCommand(setCmd, getCmd, removeCmd)
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key to a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := roundTrip(cmd, codec.SetRequest(args[0], args[1]))
		if err != nil {
			return err
		}
		return printResult(resp)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get the value for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := roundTrip(cmd, codec.GetRequest(args[0]))
		if err != nil {
			return err
		}
		if !resp.IsOk() {
			return kverr.New(kverr.Remote, resp.ErrMessage())
		}
		value, ok := resp.Value()
		if !ok {
			fmt.Println("Key not found")
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := roundTrip(cmd, codec.RemoveRequest(args[0]))
		if err != nil {
			return err
		}
		if !resp.IsOk() {
			if isKeyNotFound(resp.ErrMessage()) {
				fmt.Println("Key not found")
				os.Exit(1)
			}
			return kverr.New(kverr.Remote, resp.ErrMessage())
		}
		return nil
	},
}

// isKeyNotFound recognizes the server's KeyNotFound message text. The
// server sends kverr.Error.Error(), which always starts with the Kind's
// String(); KeyNotFound's is "KeyNotFound".
func isKeyNotFound(message string) bool {
	return strings.HasPrefix(message, kverr.KeyNotFound.String())
}

func roundTrip(cmd *cobra.Command, req codec.Request) (codec.Response, error) {
	addr, _ := cmd.Flags().GetString("addr")

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return codec.Response{}, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if err := codec.WriteRequest(conn, req); err != nil {
		return codec.Response{}, err
	}
	return codec.ReadResponse(conn)
}

func printResult(resp codec.Response) error {
	if !resp.IsOk() {
		return kverr.New(kverr.Remote, resp.ErrMessage())
	}
	return nil
}
