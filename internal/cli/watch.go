package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <realm-id>",
		Short: "Join a realm and stream presence events",
		Long: `Connect to the websocket endpoint, join the given realm and print
events as they arrive.

Events include:
  - joinedRealm: Join acknowledged
  - playerJoinedRoom / playerLeftRoom: Roster changes
  - playerMoved / playerTeleported: Position changes
  - proximityUpdate: Voice grouping changed
  - receiveMessage: Chat message
  - kicked: Connection superseded by another device

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRealm(args[0])
		},
	}

	return cmd
}

// wireEvent mirrors the server's websocket envelope
type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func watchRealm(realmID string) error {
	if cfg.Token == "" || cfg.SubjectID == "" {
		return fmt.Errorf("both --token and --uid are required")
	}

	wsURL, err := websocketURL(cfg.ServerURL)
	if err != nil {
		return err
	}
	wsURL.RawQuery = url.Values{
		"token": {cfg.Token},
		"uid":   {cfg.SubjectID},
	}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection rejected: %s", resp.Status)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	join, err := json.Marshal(wireEvent{
		Event: "joinRealm",
		Data:  json.RawMessage(fmt.Sprintf(`{"realmId":%q}`, realmID)),
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	if !cfg.JSON {
		fmt.Printf("Connected, joining realm %s\n", realmID)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		var event wireEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		printEvent(event)
	}
}

func printEvent(event wireEvent) {
	if cfg.JSON {
		data, _ := json.Marshal(map[string]any{
			"time":  time.Now().Format(time.RFC3339),
			"event": event.Event,
			"data":  event.Data,
		})
		fmt.Println(string(data))
		return
	}
	fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), event.Event, string(event.Data))
}

func websocketURL(serverURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	return u, nil
}
