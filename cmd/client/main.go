// Command client is a minimal interactive terminal client, mostly used to
// exercise a running server by hand.
//
// Usage:
//
//	client -addr localhost:8080 -email a@b.c -password secret
//
// Commands once connected:
//
//	/join <room>    join a room
//	/leave <room>   leave a room
//	/dm <user> <m>  send a direct message
//	/ping           liveness check
//	<anything else> send to the current room
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type sendPayload struct {
	Content           string `json:"content"`
	Room              string `json:"room,omitempty"`
	RecipientUsername string `json:"recipientUsername,omitempty"`
}

type chatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	room := flag.String("room", "general", "room joined on connect")
	flag.Parse()

	token, err := login(*addr, *email, *password)
	if err != nil {
		log.Fatal("Login failed: ", err)
	}

	wsURL := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + token}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		log.Fatal("Connection failed: ", err)
	}
	defer conn.Close()

	send := func(event string, data any) {
		if err := conn.WriteJSON(outEnvelope{Event: event, Data: data}); err != nil {
			log.Fatal("Write failed: ", err)
		}
	}

	go receive(conn)

	send("joinRoom", *room)
	currentRoom := *room
	color.Greenln("Connected. Current room:", currentRoom)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "/join "):
			currentRoom = strings.TrimPrefix(line, "/join ")
			send("joinRoom", currentRoom)
		case strings.HasPrefix(line, "/leave "):
			send("leaveRoom", strings.TrimPrefix(line, "/leave "))
		case strings.HasPrefix(line, "/dm "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/dm "), " ", 2)
			if len(parts) != 2 {
				color.Yellowln("Usage: /dm <user> <message>")
				continue
			}
			send("sendMessage", sendPayload{Content: parts[1], RecipientUsername: parts[0]})
		case line == "/ping":
			send("ping", nil)
		default:
			send("sendMessage", sendPayload{Content: line, Room: currentRoom})
		}
	}
}

// receive prints every server event until the connection drops.
func receive(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			color.Redln("Connection closed:", err)
			os.Exit(0)
		}
		switch env.Event {
		case "newMessage":
			var m chatMessage
			_ = json.Unmarshal(env.Data, &m)
			color.Cyanp(m.Sender + ": ")
			fmt.Println(m.Content)
		case "messageHistory":
			var history []chatMessage
			_ = json.Unmarshal(env.Data, &history)
			color.Grayln("--- history:", len(history), "messages ---")
			for _, m := range history {
				color.Grayln(m.Sender + ": " + m.Content)
			}
		case "userJoined":
			color.Greenln("*", username(env.Data), "joined")
		case "userLeft":
			color.Yellowln("*", username(env.Data), "left")
		case "messageError", "roomError":
			color.Redln("Error:", string(env.Data))
		case "pong":
			color.Grayln("pong")
		case "messageSent":
			// Delivery ack, stay quiet.
		default:
			color.Grayln(env.Event, string(env.Data))
		}
	}
}

func username(data json.RawMessage) string {
	var payload struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(data, &payload)
	return payload.Username
}

func login(addr, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post("http://"+addr+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}
