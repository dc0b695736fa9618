package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"apexdispatch/internal/models"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagToken    string
	flagInterval int
)

func main() {
	rootCmd.Flags().StringVar(&flagServer, "server", "http://localhost:8080", "dispatcher base URL")
	rootCmd.Flags().StringVar(&flagToken, "token", os.Getenv("DISPATCHER_TOKEN"), "bearer token (default $DISPATCHER_TOKEN)")
	rootCmd.Flags().IntVar(&flagInterval, "interval", 0, "poll interval in seconds, 0 keeps the server default")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "watch (jobs_status | unit_jobs ID | upscale_tasks ID)",
	Short: "Follow a dispatcher status stream and print every message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := streamPath(args)
		if err != nil {
			return err
		}
		u, err := streamURL(flagServer, path, flagToken, flagInterval)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, u, cmd.OutOrStdout())
	},
}

func streamPath(args []string) (string, error) {
	switch args[0] {
	case "jobs_status":
		if len(args) != 1 {
			return "", errors.New("jobs_status takes no id")
		}
		return "/ws/jobs_status", nil
	case "unit_jobs", "upscale_tasks":
		if len(args) != 2 {
			return "", fmt.Errorf("%s requires an id", args[0])
		}
		if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
			return "", fmt.Errorf("invalid id %q", args[1])
		}
		return "/ws/" + args[0] + "/" + args[1], nil
	}
	return "", fmt.Errorf("unknown stream %q", args[0])
}

func streamURL(server, path, token string, interval int) (string, error) {
	wsURL := strings.Replace(server, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	u, err := url.Parse(strings.TrimRight(wsURL, "/") + path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	if interval > 0 {
		q.Set("interval", strconv.Itoa(interval))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func watch(ctx context.Context, u string, out io.Writer) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var msg models.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				fmt.Fprintf(out, "closed: %d %s\n", closeErr.Code, closeErr.Text)
				if closeErr.Code == websocket.CloseNormalClosure {
					return nil
				}
				return fmt.Errorf("stream closed with code %d", closeErr.Code)
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
	}
}
