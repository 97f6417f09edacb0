package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arjalkanen/reudp-go/pkg/rconfig"
	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/socket"
)

const version = "0.1.0"

func main() {
	var (
		serverAddr string
		message    string
		timeout    time.Duration
		tryCount   uint32
	)

	cmd := &cobra.Command{
		Use:   "reudp-echo-client",
		Short: "Sends one payload to a reudp echo server and waits for the echoed reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			rlog.Banner("reudp echo client", version)

			rconfig.SetTimeout(timeout)
			rconfig.SetSendTryCount(tryCount)

			sock, err := socket.Open("127.0.0.1:0", socket.Options{})
			if err != nil {
				return err
			}
			defer sock.Close()

			log := rlog.New("echo-client", nil)

			done := make(chan socket.Outcome, 1)
			sock.SetTerminalCallback(func(outcome socket.Outcome, peerAddr string, payload []byte) {
				done <- outcome
			})

			if _, err := sock.Send([]byte(message), serverAddr); err != nil {
				return err
			}
			log.Info("sent %q to %s", message, serverAddr)

			buf := make([]byte, 2048)
			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				n, src, err := sock.Recv(buf)
				if err == nil {
					fmt.Printf("echo from %s: %q\n", src, buf[:n])
					return nil
				}
				wakeup, ok := sock.NextWakeup()
				if !ok {
					wakeup = time.Now().Add(100 * time.Millisecond)
				}
				time.Sleep(time.Until(wakeup))
				sock.Send(nil, serverAddr)

				select {
				case outcome := <-done:
					log.Info("send outcome: %s", outcome)
				default:
				}
			}
			return fmt.Errorf("timed out waiting for echo")
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&serverAddr, "server", "127.0.0.1:9999", "echo server address")
	flags.StringVar(&message, "message", "hello reudp", "payload to send")
	flags.DurationVar(&timeout, "timeout", 3*time.Second, "retransmission timeout")
	flags.Uint32Var(&tryCount, "send-try-count", 3, "total send attempts per datagram")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
