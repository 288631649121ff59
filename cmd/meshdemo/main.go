// Command meshdemo is a terminal harness for mudvaultmesh: it embeds the
// client the way a real MUD driver would, backing mesh.HostAdapter with a
// small in-memory player table and a line-oriented command prompt instead
// of a game loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	mesh "mudvaultmesh"
)

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:]) {
			return
		}
	}

	cfg, opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("[meshdemo] %v", err)
	}
	if verr := cfg.Validate(); verr != nil {
		log.Fatalf("[meshdemo] %v", verr)
	}

	host := newDemoHost(cfg.EnableColor)
	client, merr := mesh.New(cfg, host)
	if merr != nil {
		log.Fatalf("[meshdemo] %v", merr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[meshdemo] shutting down...")
		cancel()
	}()

	if serr := client.Start(ctx); serr != nil {
		log.Fatalf("[meshdemo] %v", serr)
	}
	log.Printf("[meshdemo] connecting to %s:%d as %q", cfg.GatewayHost, cfg.GatewayPort, cfg.MUDName)

	you, _ := host.FindLocalUser(opts.playerName)
	if you == nil {
		you = host.addUser(opts.playerName)
	}

	runREPL(ctx, client, host, you)

	cancel()
	if serr := client.Stop(); serr != nil {
		log.Printf("[meshdemo] stop: %v", serr)
	}
}

// demoOptions holds flags that configure the REPL itself rather than the
// mesh.Config the client runs against.
type demoOptions struct {
	playerName string
}

func parseFlags(args []string) (mesh.Config, demoOptions, error) {
	fs := flag.NewFlagSet("meshdemo", flag.ContinueOnError)

	cfg := mesh.DefaultConfig()

	mudName := fs.String("mud-name", "DemoMUD", "this MUD's name on the mesh")
	adminEmail := fs.String("admin-email", "", "operator contact email")
	gatewayHost := fs.String("gateway-host", "127.0.0.1", "mesh gateway hostname")
	gatewayPort := fs.Int("gateway-port", cfg.GatewayPort, "mesh gateway port")
	token := fs.String("token", "", "gateway auth token")
	userAgent := fs.String("user-agent", cfg.UserAgent, "Sec-WebSocket User-Agent")
	reconnectDelay := fs.Duration("reconnect-delay", cfg.ReconnectDelay, "base reconnect backoff delay")
	maxReconnects := fs.Int("max-reconnects", cfg.MaxReconnects, "max consecutive reconnect attempts (0 = unlimited)")
	pingInterval := fs.Duration("ping-interval", cfg.PingInterval, "heartbeat ping interval (>= 30s)")
	connectTimeout := fs.Duration("connect-timeout", cfg.ConnectTimeout, "dial timeout")
	maxMessageLen := fs.Int("max-message-len", cfg.MaxMessageLen, "max tell/emote/channel message length")
	historySize := fs.Int("history-size", cfg.HistorySize, "tell/emote history capacity")
	channelHistory := fs.Int("channel-history", cfg.ChannelHistory, "channel history capacity")
	rateLimitTell := fs.Int("rate-limit-tell", cfg.RateLimitTell, "tell messages allowed per 60s window")
	rateLimitChannel := fs.Int("rate-limit-channel", cfg.RateLimitChannel, "channel messages allowed per 60s window")
	rateLimitWho := fs.Int("rate-limit-who", cfg.RateLimitWho, "who lookups allowed per 60s window")
	filterProfanity := fs.Bool("filter-profanity", false, "run outgoing text through FilterProfanity")
	logAllMessages := fs.Bool("log-all-messages", false, "audit-log every envelope to sqlite")
	auditLogPath := fs.String("audit-log-path", "", "sqlite path for -log-all-messages (empty = in-memory)")
	colorFlag := fs.String("color", "auto", "colorize terminal output: auto, always, never")
	playerName := fs.String("player", "you", "local player name the REPL acts as")

	if err := fs.Parse(args); err != nil {
		return mesh.Config{}, demoOptions{}, err
	}

	cfg.MUDName = *mudName
	cfg.AdminEmail = *adminEmail
	cfg.GatewayHost = *gatewayHost
	cfg.GatewayPort = *gatewayPort
	cfg.AuthToken = *token
	cfg.UserAgent = *userAgent
	cfg.ReconnectDelay = *reconnectDelay
	cfg.MaxReconnects = *maxReconnects
	cfg.PingInterval = *pingInterval
	cfg.ConnectTimeout = *connectTimeout
	cfg.MaxMessageLen = *maxMessageLen
	cfg.HistorySize = *historySize
	cfg.ChannelHistory = *channelHistory
	cfg.RateLimitTell = *rateLimitTell
	cfg.RateLimitChannel = *rateLimitChannel
	cfg.RateLimitWho = *rateLimitWho
	cfg.FilterProfanity = *filterProfanity
	cfg.LogAllMessages = *logAllMessages
	cfg.AuditLogPath = *auditLogPath

	switch *colorFlag {
	case "always":
		cfg.EnableColor = true
	case "never":
		cfg.EnableColor = false
	default:
		cfg.EnableColor = terminalSupportsColor()
	}

	return cfg, demoOptions{playerName: strings.ToLower(*playerName)}, nil
}

// runREPL reads commands from stdin until EOF, ctx cancellation, or "quit".
func runREPL(ctx context.Context, client *mesh.Client, host *demoHost, you mesh.LocalUser) {
	fmt.Println(`meshdemo ready. commands: tell <user@mud> <msg>, emote <action>, emoteto <user@mud> <action>,
  who [mud], finger <user@mud>, locate <user>, join <channel>, leave <channel>,
  channel <name> <msg>, channels, mudlist, history <kind> [count], stats, asuser <name>, reconnect, quit`)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if handleCommand(client, host, &you, line) {
				return
			}
		}
	}
}

// handleCommand runs a single REPL line. Returns true if the operator asked
// to quit. you is a pointer so "asuser" can swap the acting player mid-loop.
func handleCommand(client *mesh.Client, host *demoHost, you *mesh.LocalUser, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, rest := fields[0], fields[1:]

	var merr *mesh.Error
	switch cmd {
	case "quit", "exit":
		return true
	case "asuser":
		if len(rest) < 1 {
			fmt.Println("usage: asuser <name>")
			return false
		}
		*you = host.addUser(rest[0])
		fmt.Printf("now acting as %s\n", (*you).Name())
		return false
	case "tell":
		if len(rest) < 2 {
			fmt.Println("usage: tell <user@mud> <message>")
			return false
		}
		merr = client.Tell(*you, rest[0], strings.Join(rest[1:], " "))
	case "emote":
		merr = client.Emote(*you, strings.Join(rest, " "))
	case "emoteto":
		if len(rest) < 2 {
			fmt.Println("usage: emoteto <user@mud> <action>")
			return false
		}
		merr = client.EmoteTo(*you, rest[0], strings.Join(rest[1:], " "))
	case "who":
		mud := ""
		if len(rest) > 0 {
			mud = rest[0]
		}
		merr = client.Who(*you, mud)
	case "finger":
		if len(rest) < 1 {
			fmt.Println("usage: finger <user@mud>")
			return false
		}
		merr = client.Finger(*you, rest[0])
	case "locate":
		if len(rest) < 1 {
			fmt.Println("usage: locate <user>")
			return false
		}
		merr = client.Locate(*you, rest[0])
	case "join":
		if len(rest) < 1 {
			fmt.Println("usage: join <channel>")
			return false
		}
		merr = client.Join(*you, rest[0])
	case "leave":
		if len(rest) < 1 {
			fmt.Println("usage: leave <channel>")
			return false
		}
		merr = client.Leave(*you, rest[0])
	case "channel":
		if len(rest) < 2 {
			fmt.Println("usage: channel <name> <message>")
			return false
		}
		merr = client.Channel(*you, rest[0], strings.Join(rest[1:], " "))
	case "channels":
		fmt.Println(strings.Join(client.ChannelList(), ", "))
		return false
	case "mudlist":
		printMUDList(client)
		return false
	case "history":
		kind := "tell"
		count := 20
		if len(rest) > 0 {
			kind = rest[0]
		}
		if len(rest) > 1 {
			if n, err := strconv.Atoi(rest[1]); err == nil {
				count = n
			}
		}
		printHistory(client, kind, count)
		return false
	case "stats":
		printStats(client)
		return false
	case "reconnect":
		merr = client.Reconnect()
	default:
		fmt.Printf("unknown command %q\n", cmd)
		return false
	}

	if merr != nil {
		fmt.Printf("error: %v\n", merr)
	}
	return false
}

func printMUDList(client *mesh.Client) {
	for _, m := range client.ListMUDs() {
		fmt.Printf("  %s (%s:%d) users=%d\n", m.Name, m.Host, m.Port, m.UserCount)
	}
}

func printHistory(client *mesh.Client, kind string, count int) {
	for _, e := range client.History(kind, count) {
		when := time.Unix(e.Timestamp, 0)
		fmt.Printf("  [%s] %s -> %s: %s\n", humanize.Time(when), e.From, e.To, e.Message)
	}
}

func printStats(client *mesh.Client) {
	s := client.Stats()
	lastPing := "never"
	if s.LastPingUnix > 0 {
		lastPing = humanize.Time(time.Unix(s.LastPingUnix, 0))
	}
	lastPong := "never"
	if s.LastPongUnix > 0 {
		lastPong = humanize.Time(time.Unix(s.LastPongUnix, 0))
	}
	fmt.Printf("phase=%s uptime=%s reconnects=%d consecutive_failures=%d last_ping=%s last_pong=%s\n",
		s.Phase, s.Uptime.Round(time.Second), s.Reconnects, s.ConsecutiveFailures, lastPing, lastPong)
}
