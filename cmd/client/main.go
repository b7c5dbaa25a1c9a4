package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"chat-relay/tcp"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"RELAY_SERVER_ADDR,default=localhost:5000"`
	MaxFrameSize  int    `env:"MAX_FRAME_SIZE,default=1048576"`
}

type request struct {
	Route      string  `json:"route"`
	Username   *string `json:"username,omitempty"`
	Password   *string `json:"password,omitempty"`
	Name       *string `json:"name,omitempty"`
	ChatroomID *string `json:"chatroom_id,omitempty"`
	Msg        *string `json:"msg,omitempty"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	conn, err := net.Dial("tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("dial %s: %w", config.ServerAddress, err)
	}
	defer conn.Close()

	color.Green.Printf("connected to %s\n", config.ServerAddress)
	printUsage()

	// Server-initiated frames (responses and broadcasts) arrive on the
	// same socket; render them as they come.
	go receiveLoop(conn, config.MaxFrameSize)

	var username, password, room string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return exitOK, nil
		}

		req, ok := parseCommand(line, &username, &password, &room)
		if !ok {
			printUsage()
			continue
		}

		payload, err := json.Marshal(req)
		if err != nil {
			return exitRuntime, err
		}
		if err := tcp.WriteFrame(conn, payload, config.MaxFrameSize); err != nil {
			return exitRuntime, fmt.Errorf("send: %w", err)
		}
	}
	return exitOK, scanner.Err()
}

func parseCommand(line string, username, password, room *string) (request, bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/login":
		if len(fields) != 3 {
			return request{}, false
		}
		*username, *password = fields[1], fields[2]
		return request{Route: tcp.RouteAuth, Username: username, Password: password}, true
	case "/signup":
		if len(fields) != 3 {
			return request{}, false
		}
		*username, *password = fields[1], fields[2]
		return request{Route: tcp.RouteSignup, Username: username, Password: password}, true
	case "/create":
		if len(fields) != 2 {
			return request{}, false
		}
		name := fields[1]
		return request{Route: tcp.RouteCreate, Username: username, Password: password, Name: &name}, true
	case "/join":
		if len(fields) != 2 {
			return request{}, false
		}
		*room = fields[1]
		return request{Route: tcp.RouteJoin, Username: username, Password: password, ChatroomID: room}, true
	default:
		if strings.HasPrefix(fields[0], "/") {
			return request{}, false
		}
		msg := line
		return request{Route: tcp.RouteChat, Username: username, Password: password, ChatroomID: room, Msg: &msg}, true
	}
}

func receiveLoop(conn net.Conn, maxFrameSize int) {
	for {
		payload, err := tcp.ReadFrame(conn, maxFrameSize)
		if err != nil {
			color.Red.Println("connection closed")
			os.Exit(exitOK)
		}

		var frame map[string]json.RawMessage
		if err := json.Unmarshal(payload, &frame); err != nil {
			color.Red.Printf("unreadable frame: %v\n", err)
			continue
		}

		if raw, ok := frame["new"]; ok {
			var message tcp.WireMessage
			if err := json.Unmarshal(raw, &message); err == nil {
				color.Cyan.Printf("%s: %s\n", message.Author, message.Text)
				continue
			}
		}

		var resp tcp.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if resp.Code == 200 {
			color.Green.Printf("<- %s\n", string(payload))
		} else {
			color.Yellow.Printf("<- %d %s\n", resp.Code, resp.Reason)
		}
	}
}

func printUsage() {
	color.Gray.Println(`commands:
  /signup <username> <password>
  /login  <username> <password>
  /create <room name>
  /join   <chatroom_id>
  /quit
anything else is sent as a chat message to the joined room`)
}
