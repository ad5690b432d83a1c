package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"group-chat/internal/domain"
	"group-chat/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

type checkConfig struct {
	ServerURL string        `env:"CHAT_SERVER_URL" envDefault:"http://localhost:8080"`
	Users     []string      `env:"FANOUT_USERS" envSeparator:"," envDefault:"alice,bob"`
	Clients   int           `env:"FANOUT_CLIENTS" envDefault:"5"`
	Messages  int           `env:"FANOUT_MESSAGES" envDefault:"10"`
	Timeout   time.Duration `env:"FANOUT_TIMEOUT" envDefault:"10s"`
	JWTSecret string        `env:"JWT_SECRET"`
}

type pageMessage struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// fanout_check conecta N clientes al chat, envía mensajes desde algunos de ellos
// y verifica que todos reciban todo y que el historial paginado los contenga.
func main() {
	_ = godotenv.Load()

	var cfg checkConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}
	cfg.Users = lo.Compact(lo.Map(cfg.Users, func(u string, _ int) string { return strings.TrimSpace(u) }))
	if len(cfg.Users) == 0 || cfg.Clients <= 0 || cfg.Messages <= 0 {
		log.Fatal("FANOUT_USERS, FANOUT_CLIENTS y FANOUT_MESSAGES deben ser positivos")
	}
	// cada usuario necesita al menos una conexión propia para enviar
	if cfg.Clients < len(cfg.Users) {
		cfg.Clients = len(cfg.Users)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	startID, err := lastMessageID(ctx, cfg.ServerURL)
	if err != nil {
		log.Fatalf("leer historial: %v", err)
	}

	conns := make([]*websocket.Conn, cfg.Clients)
	for i := range conns {
		username := cfg.Users[i%len(cfg.Users)]
		conn, err := dial(cfg, username)
		if err != nil {
			log.Fatalf("cliente %d: %v", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}
	fmt.Printf("%s[Conectados]%s %d clientes, desde #%d\n", colorCyan, colorReset, len(conns), startID)

	run := uuid.NewString()[:8]
	sent := make([]sentMessage, 0, cfg.Messages)
	for i := 0; i < cfg.Messages; i++ {
		sent = append(sent, sentMessage{
			Username: cfg.Users[i%len(cfg.Users)],
			Body:     fmt.Sprintf("fanout %s #%d", run, i),
		})
	}

	received := make([][]sentMessage, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			received[i] = collect(ctx, conn, run, len(sent))
		}(i, conn)
	}

	for i, m := range sent {
		// cada mensaje sale por el cliente cuyo usuario coincide con el emisor
		conn := conns[i%len(cfg.Users)]
		if err := conn.WriteJSON(domain.InboundEvent{Username: m.Username, Message: m.Body}); err != nil {
			log.Fatalf("enviar %q: %v", m.Body, err)
		}
	}
	wg.Wait()

	failed := false
	for _, r := range verifyDeliveries(sent, received) {
		if r.ok() {
			fmt.Printf("%s[OK]%s cliente %d recibio %d/%d\n", colorGreen, colorReset, r.Client, len(sent), len(sent))
			continue
		}
		failed = true
		fmt.Printf("%s[FALLA]%s cliente %d faltan=%v desorden=%t\n", colorRed, colorReset, r.Client, r.Missing, r.OutOfOrder)
	}

	page, err := fetchAfter(ctx, cfg.ServerURL, startID)
	if err != nil {
		log.Fatalf("paginar: %v", err)
	}
	if err := verifyPage(sent, page); err != nil {
		failed = true
		fmt.Printf("%s[FALLA]%s historial: %v\n", colorRed, colorReset, err)
	} else {
		fmt.Printf("%s[OK]%s historial contiene los %d mensajes\n", colorGreen, colorReset, len(sent))
	}

	if failed {
		os.Exit(1)
	}
}

// collect lee eventos hasta ver want mensajes de esta corrida o hasta que venza ctx.
func collect(ctx context.Context, conn *websocket.Conn, run string, want int) []sentMessage {
	var out []sentMessage
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	for len(out) < want {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return out
		}
		var ev domain.OutboundEvent
		if err := json.Unmarshal(data, &ev); err != nil || !strings.Contains(ev.Message, run) {
			continue
		}
		out = append(out, sentMessage{Username: ev.Username, Body: ev.Message})
	}
	return out
}

func dial(cfg checkConfig, username string) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"

	header := http.Header{}
	if cfg.JWTSecret != "" {
		token, err := service.NewJWTService(cfg.JWTSecret, time.Hour).
			GenerateAccessToken(domain.User{ID: username, Username: username})
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	return conn, err
}

func fetchAfter(ctx context.Context, serverURL string, lastID int64) ([]pageMessage, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	var all []pageMessage
	for {
		reqURL := strings.TrimRight(serverURL, "/") + "/api/messages?last_id=" + strconv.FormatInt(lastID, 10)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var page struct {
			Messages []pageMessage `json:"messages"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		all = append(all, page.Messages...)
		if len(page.Messages) < domain.DefaultPageSize {
			return all, nil
		}
		lastID = page.Messages[len(page.Messages)-1].ID
	}
}

func lastMessageID(ctx context.Context, serverURL string) (int64, error) {
	page, err := fetchAfter(ctx, serverURL, 0)
	if err != nil {
		return 0, err
	}
	if len(page) == 0 {
		return 0, nil
	}
	return page[len(page)-1].ID, nil
}
