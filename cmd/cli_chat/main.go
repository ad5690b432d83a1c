package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"group-chat/internal/domain"
	"group-chat/internal/service"
)

type cliConfig struct {
	ServerURL string `env:"CHAT_SERVER_URL" envDefault:"http://localhost:8080"`
	Username  string `env:"CHAT_USERNAME"`
	Token     string `env:"CHAT_TOKEN"`
	JWTSecret string `env:"JWT_SECRET"`
}

type pageMessage struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	if strings.TrimSpace(cfg.Username) == "" {
		fmt.Print("Usuario: ")
		name, _ := reader.ReadString('\n')
		cfg.Username = strings.TrimSpace(name)
	}
	if cfg.Username == "" {
		log.Fatal("usuario requerido")
	}

	token := cfg.Token
	if token == "" && cfg.JWTSecret != "" {
		// solo para desarrollo: firma un token local con el mismo secreto del servidor
		jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Hour)
		t, err := jwtSvc.GenerateAccessToken(domain.User{ID: cfg.Username, Username: cfg.Username})
		if err != nil {
			log.Fatalf("firmar token: %v", err)
		}
		token = t
	}

	lastID, err := backfill(ctx, cfg.ServerURL)
	if err != nil {
		log.Fatalf("historial: %v", err)
	}

	conn, err := dial(cfg.ServerURL, token)
	if err != nil {
		log.Fatalf("conectar: %v", err)
	}
	defer conn.Close()

	fmt.Printf("===== %s (desde #%d) =====\n", domain.DefaultRoom, lastID)
	fmt.Println("Escribe un mensaje y Enter. Ctrl+C para salir.")

	go readLoop(conn, stop)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			ev := domain.InboundEvent{Username: cfg.Username, Message: line}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("enviar: %v", err)
				return
			}
		}
	}
}

// backfill imprime el historial completo paginando de a 50 y devuelve el último id visto.
func backfill(ctx context.Context, serverURL string) (int64, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	var lastID int64
	for {
		reqURL := strings.TrimRight(serverURL, "/") + "/api/messages?last_id=" + strconv.FormatInt(lastID, 10)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return lastID, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return lastID, err
		}
		var page struct {
			Messages []pageMessage `json:"messages"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return lastID, err
		}
		if resp.StatusCode != http.StatusOK {
			return lastID, fmt.Errorf("status %d", resp.StatusCode)
		}

		for _, m := range page.Messages {
			ts, _ := time.Parse(time.RFC3339Nano, m.Timestamp)
			fmt.Printf("[%s] %s: %s\n", domain.FormatClock(ts, nil), m.Sender, m.Message)
			lastID = m.ID
		}
		if len(page.Messages) < domain.DefaultPageSize {
			return lastID, nil
		}
	}
}

func dial(serverURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	return conn, err
}

func readLoop(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Println("conexión cerrada:", err)
			return
		}
		var frame struct {
			domain.OutboundEvent
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			fmt.Printf("!! %s %s\n", frame.Error, frame.Detail)
			continue
		}
		fmt.Printf("[%s] %s: %s\n", frame.Time, frame.Username, frame.Message)
	}
}
