// Command client is a cobra-based CLI adapted from the teacher's
// cmd/client/client.go, speaking the new wire format: int64 price/quantity
// in ticks/lots and an explicit caller-supplied order id (generated with
// google/uuid when the caller doesn't give one) instead of the teacher's
// float64 prices and username-keyed sessions.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"clob/internal/adapter/tcp"
	"clob/internal/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverAddr string

	root := &cobra.Command{
		Use:   "client",
		Short: "Submit orders to the matching engine over TCP",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:9001", "address of the matching engine's TCP adapter")

	root.AddCommand(newPlaceCmd(&serverAddr))
	root.AddCommand(newCancelCmd(&serverAddr))
	root.AddCommand(newLogCmd(&serverAddr))
	return root
}

func newPlaceCmd(serverAddr *string) *cobra.Command {
	var (
		id       string
		sideStr  string
		price    int64
		quantity int64
	)

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Submit a new limit order",
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := parseSide(sideStr)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.New().String()
			}

			conn, err := dial(*serverAddr)
			if err != nil {
				return err
			}
			defer conn.Close()

			req := tcp.SubmitRequest{OrderID: model.OrderID(id), Side: side, Price: price, Quantity: quantity}
			if _, err := conn.Write(tcp.EncodeSubmit(req)); err != nil {
				return fmt.Errorf("sending submit: %w", err)
			}
			fmt.Printf("-> submitted %s id=%s price=%d qty=%d\n", side, id, price, quantity)
			return printReports(conn)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "order id (generated if omitted)")
	cmd.Flags().StringVar(&sideStr, "side", "buy", "order side: 'buy' or 'sell'")
	cmd.Flags().Int64Var(&price, "price", 0, "limit price, in ticks (required, > 0)")
	cmd.Flags().Int64Var(&quantity, "qty", 0, "quantity, in lots (required, > 0)")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func newCancelCmd(serverAddr *string) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			conn, err := dial(*serverAddr)
			if err != nil {
				return err
			}
			defer conn.Close()

			req := tcp.CancelRequest{OrderID: model.OrderID(id)}
			if _, err := conn.Write(tcp.EncodeCancel(req)); err != nil {
				return fmt.Errorf("sending cancel: %w", err)
			}
			fmt.Printf("-> cancel requested for id=%s\n", id)
			return printReports(conn)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "id of the order to cancel")
	return cmd
}

func newLogCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Ask the server to log a book snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dial(*serverAddr)
			if err != nil {
				return err
			}
			defer conn.Close()

			if _, err := conn.Write(tcp.EncodeLogBook()); err != nil {
				return fmt.Errorf("sending log request: %w", err)
			}
			fmt.Println("-> log request sent")
			return nil
		},
	}
}

func dial(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

func parseSide(s string) (model.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return model.Buy, nil
	case "sell":
		return model.Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q (use 'buy' or 'sell')", s)
	}
}

// printReports reads and renders the accept/reject/execution reports the
// server pushes back on the same connection. The matcher may take a moment
// to produce a fill, but a one-shot CLI invocation can't wait forever, so
// it gives up after reportWindow of silence rather than hanging until
// Ctrl+C the way the teacher's long-lived client session did.
const reportWindow = 2 * time.Second

func printReports(conn net.Conn) error {
	buf := make([]byte, 4*1024)
	for {
		conn.SetReadDeadline(time.Now().Add(reportWindow))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading report: %w", err)
		}
		rep, err := tcp.DecodeReport(buf[:n])
		if err != nil {
			fmt.Fprintf(os.Stderr, "malformed report: %v\n", err)
			continue
		}
		printReport(rep)
	}
}

func printReport(rep tcp.Report) {
	switch rep.Type {
	case tcp.Accepted:
		fmt.Printf("[ACCEPTED] id=%s\n", rep.OrderID)
	case tcp.Rejected:
		fmt.Printf("[REJECTED] id=%s reason=%s\n", rep.OrderID, rep.Err)
	case tcp.Execution:
		fmt.Printf("[EXECUTION] id=%s side=%s price=%d qty=%d vs=%s\n",
			rep.OrderID, rep.Side, rep.Price, rep.Quantity, rep.Counterpart)
	}
}
