package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arjalkanen/reudp-go/pkg/rconfig"
	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/socket"
)

const version = "0.1.0"

func main() {
	var (
		listenAddr string
		timeout    time.Duration
		tryCount   uint32
	)

	cmd := &cobra.Command{
		Use:   "reudp-echo-server",
		Short: "Echoes every payload it receives back to its sender over reudp",
		RunE: func(cmd *cobra.Command, args []string) error {
			rlog.Banner("reudp echo server", version)

			rconfig.SetTimeout(timeout)
			rconfig.SetSendTryCount(tryCount)

			sock, err := socket.Open(listenAddr, socket.Options{})
			if err != nil {
				return err
			}
			defer sock.Close()

			log := rlog.New("echo-server", nil)
			log.Success("listening on %s (handle %s)", sock.LocalAddr(), sock.Handle())

			sock.SetTerminalCallback(func(outcome socket.Outcome, peerAddr string, payload []byte) {
				log.Info("outcome %s for peer %s", outcome, peerAddr)
			})

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() { errChan <- serve(sock, log) }()

			select {
			case err := <-errChan:
				log.Fatal("server error: %v", err)
			case sig := <-sigChan:
				log.Warn("received signal: %v", sig)
				log.Info("shutting down")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "127.0.0.1:9999", "address to bind")
	flags.DurationVar(&timeout, "timeout", 3*time.Second, "retransmission timeout")
	flags.Uint32Var(&tryCount, "send-try-count", 3, "total send attempts per datagram")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(sock *socket.Socket, log *rlog.Logger) error {
	buf := make([]byte, 2048)
	for {
		n, src, err := sock.Recv(buf)
		if err != nil {
			deadline, ok := sock.NextWakeup()
			if !ok {
				deadline = time.Now().Add(100 * time.Millisecond)
			}
			time.Sleep(time.Until(deadline))
			if _, err := sock.Send(nil, src); err != nil {
				log.Warn("flush error: %v", err)
			}
			continue
		}

		log.Debug("received %d bytes from %s", n, src)
		if _, err := sock.Send(buf[:n], src); err != nil {
			log.Warn("echo send error: %v", err)
		}
	}
}
