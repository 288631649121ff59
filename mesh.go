package mesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mudvaultmesh/internal/auditlog"
	"mudvaultmesh/internal/channels"
	"mudvaultmesh/internal/directory"
	"mudvaultmesh/internal/envelope"
	"mudvaultmesh/internal/history"
	"mudvaultmesh/internal/metrics"
	"mudvaultmesh/internal/ratelimit"
	"mudvaultmesh/internal/router"
	"mudvaultmesh/internal/state"
	"mudvaultmesh/internal/transport"
	"mudvaultmesh/internal/wsframe"
)

// errNotConnected signals that sendSession was called with no active
// session.
var errNotConnected = errors.New("mesh: not connected")

// sweepInterval governs how often the directory cache and request
// correlator are swept for expired entries.
const sweepInterval = 30 * time.Second

// metricsInterval governs how often internal/metrics logs a traffic
// summary.
const metricsInterval = 60 * time.Second

// Client is the single owning value for one mesh connection, per Design
// Note §9 ("Globals": model as a single owning Client constructed from
// configuration; the host holds one instance). Lifecycle: construct
// (New) → start (Start) → runs its own goroutine → stop (Stop).
//
// Grounded on the teacher's internal/core.ChannelState/Session split
// (server/internal/core/channel_state.go): one owning value holding every
// piece of mutable state. Command methods run on the caller's goroutine;
// shared state sits behind per-subsystem locks or atomics that callers
// never see. Host-adapter callbacks are made both from the caller's
// goroutine and from the Client's own goroutines.
type Client struct {
	cfg  Config
	host HostAdapter

	machine        *state.Machine
	channels       *channels.Registry
	history        *history.Rings
	channelHistory *history.Rings
	limiter        *ratelimit.Limiter
	dir            *directory.Cache
	correlator     *router.Correlator
	rtr            *router.Router
	audit          *auditlog.Log
	counters       *metrics.Counters

	sessMu  sync.Mutex
	sess    *transport.Session
	rawConn net.Conn

	pendingMu        sync.Mutex
	pendingRequester map[string]LocalUser

	reconnectRequested atomic.Bool

	startedMonotonic time.Duration
	cancel           context.CancelFunc
	done             chan struct{}
}

// New constructs a Client from cfg and host. It validates cfg but performs
// no I/O; call Start to begin connecting.
func New(cfg Config, host HostAdapter) (*Client, *Error) {
	if host == nil {
		return nil, newError(KindInternal, "host adapter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var audit *auditlog.Log
	if cfg.LogAllMessages {
		path := cfg.AuditLogPath
		if path == "" {
			path = ":memory:"
		}
		l, err := auditlog.Open(path)
		if err != nil {
			return nil, wrapError(KindInternal, err, "open audit log")
		}
		audit = l
	}

	c := &Client{
		cfg:              cfg,
		host:             host,
		machine:          state.New(),
		channels:         channels.New(),
		history:          history.NewRings(cfg.HistorySize),
		channelHistory:   history.NewRings(cfg.ChannelHistory),
		limiter:          ratelimit.New(map[string]int{"tell": cfg.RateLimitTell, "channel": cfg.RateLimitChannel, "who": cfg.RateLimitWho}),
		dir:              directory.New(),
		correlator:       router.NewCorrelator(),
		audit:            audit,
		counters:         &metrics.Counters{},
		pendingRequester: make(map[string]LocalUser),
		done:             make(chan struct{}),
	}
	c.rtr = router.New(c.buildHandlers())
	return c, nil
}

// Start launches the Client's own execution goroutine, which owns the
// transport, handles reconnect/backoff, and dispatches inbound envelopes.
// It returns immediately; Start never blocks the host's own loop (§5).
func (c *Client) Start(ctx context.Context) *Error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.startedMonotonic = c.host.NowMonotonic()

	go c.run(runCtx)
	go metrics.Run(runCtx, c.counters, metricsInterval, func(line string) {
		c.host.Log(LogInfo, "[metrics] "+line)
	})
	return nil
}

// Stop moves the Client to its terminal state, tears down the transport,
// and releases resources. Safe to call once Start has returned.
func (c *Client) Stop() *Error {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	if c.audit != nil {
		if err := c.audit.Close(); err != nil {
			return wrapError(KindInternal, err, "close audit log")
		}
	}
	return nil
}

// run is the Client's single execution context: everything that touches
// the receive buffer, the correlation map, the channel registry, history
// rings, or the rate limiter happens here or through internally-locked
// subsystems, per the shared-resource policy in §5.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.closeSess()
			c.machine.Transition(state.Fatal)
			return
		default:
		}

		if err := c.connectOnce(ctx); err != nil {
			c.host.Log(LogWarn, fmt.Sprintf("[mesh] connect failed: %v", err))
			c.machine.RecordConnectFailure()
			if !c.backoffOrAbandon(ctx) {
				return
			}
			continue
		}

		lost := c.serve(ctx)
		c.closeSess()

		if ctx.Err() != nil {
			c.machine.Transition(state.Fatal)
			return
		}
		c.machine.Transition(state.Disconnected)

		if lost {
			c.machine.RecordConnectFailure()
			c.counters.Reconnects.Add(1)
			if !c.backoffOrAbandon(ctx) {
				return
			}
		}
	}
}

// backoffOrAbandon waits out the current reconnect delay (Invariant 2 /
// scenario 4: 30, 60, 120, 240, 300-capped), or gives up once
// max_reconnects consecutive failures have accumulated.
func (c *Client) backoffOrAbandon(ctx context.Context) bool {
	if c.machine.ShouldAbandon(c.cfg.MaxReconnects) {
		c.machine.Transition(state.Fatal)
		c.host.Log(LogError, "[mesh] max_reconnects exceeded, giving up")
		return false
	}
	delay := c.machine.NextBackoff(c.cfg.ReconnectDelay, c.cfg.MaxRetryDelay, c.cfg.RetryBackoff)
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		c.machine.Transition(state.Fatal)
		return false
	}
}

// connectOnce performs one dial+handshake+auth attempt.
func (c *Client) connectOnce(ctx context.Context) *Error {
	c.machine.Transition(state.Connecting)

	addr := fmt.Sprintf("%s:%d", c.cfg.GatewayHost, c.cfg.GatewayPort)
	conn, err := net.DialTimeout("tcp", addr, c.cfg.ConnectTimeout)
	if err != nil {
		c.machine.Transition(state.Disconnected)
		return wrapError(KindTransport, err, "dial %s", addr)
	}

	c.machine.Transition(state.Handshaking)
	params := wsframe.HandshakeParams{
		Host:       addr,
		Path:       "/",
		UserAgent:  c.cfg.UserAgent,
		MaxPayload: c.cfg.BufferSize,
	}
	// The handshake does a blocking bufio read with no deadline of its own;
	// a gateway that accepts the TCP connection but never completes the
	// 101 response would otherwise wedge here forever.
	_ = conn.SetReadDeadline(c.host.NowWallclock().Add(c.cfg.ConnectTimeout))
	sess, err := transport.Dial(conn, params)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		c.machine.Transition(state.Disconnected)
		return wrapError(KindTransport, err, "handshake")
	}
	c.setSess(sess, conn)

	c.machine.Transition(state.Authenticating)
	now := c.host.NowWallclock()
	authEnv := NewEnvelope(now, c.cfg.MUDName, KindAuth)
	authEnv.Payload = envelope.NewBuilder().
		Str("mudName", c.cfg.MUDName).
		Str("token", c.cfg.AuthToken).
		Bytes()
	if err := c.sendEnvelope(authEnv); err != nil {
		c.closeSess()
		c.machine.Transition(state.Disconnected)
		return err
	}
	return nil
}

// serve pumps inbound events until the connection drops or ctx is
// cancelled. It reports lost=true when the connection dropped on its own
// (so the caller should count it as a reconnect-worthy failure), and
// lost=false for a clean shutdown or an operator-requested reconnect.
func (c *Client) serve(ctx context.Context) (lost bool) {
	type readResult struct {
		res transport.Result
		err error
	}
	// Buffered by 1 so the reader goroutine's final send never blocks once
	// serve has already returned (e.g. after closeSess unblocks its read).
	inbound := make(chan readResult, 1)
	go func() {
		for {
			res, err := c.getSess().ReadNext()
			inbound <- readResult{res, err}
			if err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	// The gateway may accept the 101 handshake and then withhold its
	// type=auth reply forever; without its own deadline authenticating
	// would wedge the client permanently (the ping path above only
	// rescues an already-Authenticated session, §4.4).
	authDeadline := time.NewTimer(c.cfg.ConnectTimeout)
	defer authDeadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case rr := <-inbound:
			if rr.err != nil {
				if c.reconnectRequested.Swap(false) {
					c.host.Log(LogInfo, "[mesh] reconnect requested")
					return false
				}
				c.host.Log(LogWarn, fmt.Sprintf("[mesh] connection lost: %v", rr.err))
				return true
			}
			c.handleResult(rr.res)

		case <-authDeadline.C:
			if c.machine.Phase() != state.Authenticated {
				c.host.Log(LogWarn, "[mesh] authenticate timeout, disconnecting")
				c.machine.Transition(state.Disconnected)
				return true
			}

		case <-pingTicker.C:
			if c.machine.Phase() != state.Authenticated {
				continue
			}
			now := c.host.NowWallclock().Unix()
			timeout := int64(2 * c.cfg.PingInterval / time.Second)
			if !c.machine.IsAlive(now, timeout) {
				c.host.Log(LogWarn, "[mesh] ping timeout, disconnecting")
				return true
			}
			if err := c.sendSession(func(s *transport.Session) error { return s.Ping() }); err == nil {
				c.machine.RecordPingSent(now)
			}

		case <-sweepTicker.C:
			now := c.host.NowWallclock().Unix()
			c.dir.SweepExpired(now)
			for _, id := range c.correlator.SweepExpired(now) {
				c.takeRequester(id)
			}
		}
	}
}

func (c *Client) handleResult(res transport.Result) {
	switch res.Kind {
	case transport.ResultEnvelope:
		c.counters.EnvelopesReceived.Add(1)
		c.counters.BytesReceived.Add(int64(len(res.Envelope)))

		env, derr := DecodeEnvelope(res.Envelope)
		if derr != nil {
			c.host.Log(LogWarn, fmt.Sprintf("[mesh] protocol error: %v", derr))
			return
		}
		now := c.host.NowWallclock().Unix()
		c.dir.TouchMUD(env.From.MUD, now)
		if c.audit != nil {
			_ = c.audit.Append(auditlog.Record{
				Direction:  auditlog.DirectionInbound,
				Kind:       string(env.Type),
				From:       partyKey(env.From),
				To:         partyKey(env.To),
				EnvelopeID: env.ID,
				Raw:        string(res.Envelope),
				CreatedAt:  now,
			})
		}
		channel, _ := env.PayloadString("channel")
		c.rtr.Route(string(env.Type), env.ID, env.From.MUD, env.From.User, env.To.User, channel, env.Payload)

	case transport.ResultPong:
		c.machine.RecordPongReceived(c.host.NowWallclock().Unix())

	case transport.ResultClosed:
		c.host.Log(LogInfo, "[mesh] gateway closed the connection")
	}
}

func partyKey(p Party) string {
	if p.User == "" {
		return p.MUD
	}
	return p.User + "@" + p.MUD
}

func (c *Client) setSess(sess *transport.Session, conn net.Conn) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	c.sess = sess
	c.rawConn = conn
}

func (c *Client) getSess() *transport.Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.sess
}

// sendSession runs write against the current session while holding sessMu
// for its whole duration, so concurrent callers (player commands, the
// heartbeat ticker) never interleave writes on the same connection.
// transport.Session has no locking of its own, so this is the one place
// that boundary is enforced.
func (c *Client) sendSession(write func(*transport.Session) error) error {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if c.sess == nil {
		return errNotConnected
	}
	return write(c.sess)
}

func (c *Client) closeSess() {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	if c.rawConn != nil {
		_ = c.rawConn.Close()
		c.rawConn = nil
	}
}

// sendEnvelope encodes and writes env, enforcing buffer_size and updating
// traffic counters and the audit log.
func (c *Client) sendEnvelope(env Envelope) *Error {
	data := env.Encode()
	if len(data) > c.cfg.BufferSize {
		return newError(KindCapacity, "encoded envelope exceeds buffer_size (%d > %d)", len(data), c.cfg.BufferSize)
	}
	if err := c.sendSession(func(s *transport.Session) error { return s.Send(data) }); err != nil {
		if errors.Is(err, errNotConnected) {
			return newError(KindTransport, "not connected")
		}
		return wrapError(KindTransport, err, "send envelope")
	}
	c.counters.EnvelopesSent.Add(1)
	c.counters.BytesSent.Add(int64(len(data)))
	if c.audit != nil {
		now := c.host.NowWallclock().Unix()
		_ = c.audit.Append(auditlog.Record{
			Direction:  auditlog.DirectionOutbound,
			Kind:       string(env.Type),
			From:       partyKey(env.From),
			To:         partyKey(env.To),
			EnvelopeID: env.ID,
			Raw:        string(data),
			CreatedAt:  now,
		})
	}
	return nil
}

func (c *Client) rememberRequester(id string, user LocalUser) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pendingRequester[id] = user
}

func (c *Client) takeRequester(id string) (LocalUser, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	u, ok := c.pendingRequester[id]
	delete(c.pendingRequester, id)
	return u, ok
}

func (c *Client) authorize(user LocalUser, cap Capability, minLevel int) *Error {
	if !c.host.UserCan(user, cap) {
		return newError(KindPermission, "%s: insufficient capability", cap)
	}
	if c.host.UserLevel(user) < minLevel {
		return newError(KindPermission, "%s: insufficient level", cap)
	}
	return nil
}

// splitUserAtMUD parses "user@mud", the wire addressing shape used by
// tell/emoteto/finger targets.
func splitUserAtMUD(s string) (user, mud string, ok bool) {
	i := strings.IndexByte(s, '@')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// ---------------------------------------------------------------------------
// Player command surface (§6).
// ---------------------------------------------------------------------------

// Tell sends a private message to user@mud.
func (c *Client) Tell(from LocalUser, target, message string) *Error {
	if !c.cfg.FeatureTell {
		return newError(KindPermission, "tell is disabled")
	}
	if err := c.authorize(from, CapUseTell, c.cfg.MinLevelTell); err != nil {
		return err
	}
	if len(message) > c.cfg.MaxMessageLen {
		return newError(KindCapacity, "tell: message exceeds max_message_len")
	}
	targetUser, targetMUD, ok := splitUserAtMUD(target)
	if !ok {
		return newError(KindProtocol, "tell: target must be user@mud")
	}
	now := c.host.NowWallclock()
	if !c.limiter.Allow("tell", from.Name(), now.Unix()) {
		c.counters.RateLimited.Add(1)
		return newError(KindRateLimited, "tell: rate limit exceeded")
	}
	if c.cfg.FilterProfanity {
		message = c.host.FilterProfanity(message)
	}

	env := NewEnvelope(now, c.cfg.MUDName, KindTell)
	env.From.User = from.Name()
	env.To = Party{MUD: targetMUD, User: targetUser}
	env.Payload = envelope.NewBuilder().Str("message", message).Bytes()

	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.history.Append(history.Entry{
		Kind: "tell", From: from.Name() + "@" + c.cfg.MUDName, To: target,
		Message: message, Timestamp: now.Unix(),
	})
	c.host.Deliver(from, fmt.Sprintf("You tell %s: %s", target, message), StyleTell)
	return nil
}

// Emote broadcasts a descriptive action to the entire mesh.
func (c *Client) Emote(from LocalUser, action string) *Error {
	if !c.cfg.FeatureEmote {
		return newError(KindPermission, "emote is disabled")
	}
	if len(action) > c.cfg.MaxMessageLen {
		return newError(KindCapacity, "emote: action exceeds max_message_len")
	}
	now := c.host.NowWallclock()
	if c.cfg.FilterProfanity {
		action = c.host.FilterProfanity(action)
	}
	env := NewEnvelope(now, c.cfg.MUDName, KindEmote)
	env.From.User = from.Name()
	env.Payload = envelope.NewBuilder().Str("action", action).Bytes()
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.history.Append(history.Entry{
		Kind: "emote", From: from.Name() + "@" + c.cfg.MUDName,
		Message: action, Timestamp: now.Unix(),
	})
	c.host.Deliver(from, fmt.Sprintf("%s %s", from.Name(), action), StyleEmote)
	return nil
}

// EmoteTo sends a descriptive action directed at one remote user.
func (c *Client) EmoteTo(from LocalUser, target, action string) *Error {
	if !c.cfg.FeatureEmote {
		return newError(KindPermission, "emote is disabled")
	}
	targetUser, targetMUD, ok := splitUserAtMUD(target)
	if !ok {
		return newError(KindProtocol, "emoteto: target must be user@mud")
	}
	if len(action) > c.cfg.MaxMessageLen {
		return newError(KindCapacity, "emoteto: action exceeds max_message_len")
	}
	now := c.host.NowWallclock()
	if c.cfg.FilterProfanity {
		action = c.host.FilterProfanity(action)
	}
	env := NewEnvelope(now, c.cfg.MUDName, KindEmoteTo)
	env.From.User = from.Name()
	env.To = Party{MUD: targetMUD, User: targetUser}
	env.Payload = envelope.NewBuilder().Str("action", action).Bytes()
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.host.Deliver(from, fmt.Sprintf("%s %s at %s", from.Name(), action, target), StyleEmote)
	return nil
}

// Who requests the online-user list from a remote MUD; the reply (if any)
// is delivered asynchronously to from once it arrives.
func (c *Client) Who(from LocalUser, mud string) *Error {
	if !c.cfg.FeatureWho {
		return newError(KindPermission, "who is disabled")
	}
	if err := c.authorize(from, CapUseWho, c.cfg.MinLevelWho); err != nil {
		return err
	}
	now := c.host.NowWallclock()
	if !c.limiter.Allow("who", from.Name(), now.Unix()) {
		c.counters.RateLimited.Add(1)
		return newError(KindRateLimited, "who: rate limit exceeded")
	}
	env := NewEnvelope(now, c.cfg.MUDName, KindWho)
	env.From.User = from.Name()
	env.To = Party{MUD: mud}
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.correlator.Register(env.ID, "who", now.Unix())
	c.rememberRequester(env.ID, from)
	return nil
}

// Finger requests a remote user's detailed profile.
func (c *Client) Finger(from LocalUser, target string) *Error {
	if !c.cfg.FeatureFinger {
		return newError(KindPermission, "finger is disabled")
	}
	if err := c.authorize(from, CapUseFinger, c.cfg.MinLevelFinger); err != nil {
		return err
	}
	targetUser, targetMUD, ok := splitUserAtMUD(target)
	if !ok {
		return newError(KindProtocol, "finger: target must be user@mud")
	}
	now := c.host.NowWallclock()
	env := NewEnvelope(now, c.cfg.MUDName, KindFinger)
	env.From.User = from.Name()
	env.To = Party{MUD: targetMUD, User: targetUser}
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.correlator.Register(env.ID, "finger", now.Unix())
	c.rememberRequester(env.ID, from)
	return nil
}

// Locate broadcasts a request asking which MUD currently hosts user.
func (c *Client) Locate(from LocalUser, user string) *Error {
	if !c.cfg.FeatureLocate {
		return newError(KindPermission, "locate is disabled")
	}
	if err := c.authorize(from, CapUseTell, c.cfg.MinLevelLocate); err != nil {
		return err
	}
	now := c.host.NowWallclock()
	env := NewEnvelope(now, c.cfg.MUDName, KindLocate)
	env.From.User = from.Name()
	env.Payload = envelope.NewBuilder().Str("user", user).Bytes()
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.correlator.Register(env.ID, "locate", now.Unix())
	c.rememberRequester(env.ID, from)
	return nil
}

// ListMUDs renders the cached peer-MUD directory.
func (c *Client) ListMUDs() []directory.PeerMUD {
	return c.dir.MUDs()
}

// Stats summarizes connection health for the "stats" command.
type Stats struct {
	Phase               string
	Uptime              time.Duration
	LastPingUnix        int64
	LastPongUnix        int64
	Reconnects          int64
	ConsecutiveFailures uint32
}

// Stats returns a snapshot of current connection health.
func (c *Client) Stats() Stats {
	return Stats{
		Phase:               c.machine.Phase().String(),
		Uptime:              c.host.NowMonotonic() - c.startedMonotonic,
		LastPingUnix:        c.machine.LastPingSent(),
		LastPongUnix:        c.machine.LastPongReceived(),
		Reconnects:          c.counters.Reconnects.Load(),
		ConsecutiveFailures: c.machine.ConsecutiveFailures(),
	}
}

// ChannelList renders every known channel.
func (c *Client) ChannelList() []string {
	return c.channels.List()
}

// Join adds the local user to a channel's local member set and tells the
// gateway about it.
func (c *Client) Join(user LocalUser, channel string) *Error {
	if !c.cfg.FeatureChannel {
		return newError(KindPermission, "channel is disabled")
	}
	if err := c.authorize(user, CapUseChannel, c.cfg.MinLevelChannel); err != nil {
		return err
	}
	if !channels.ValidName(channel) {
		return newError(KindProtocol, "join: invalid channel name %q", channel)
	}
	if !c.channels.Join(channel, user.Name()) {
		return newError(KindInternal, "join: registry rejected a validated name")
	}
	return c.sendChannelAction(user, channel, "join")
}

// Leave removes the local user from a channel's local member set.
func (c *Client) Leave(user LocalUser, channel string) *Error {
	if !c.channels.Leave(channel, user.Name()) {
		return newError(KindNotFound, "leave: not a member of %q", channel)
	}
	return c.sendChannelAction(user, channel, "leave")
}

func (c *Client) sendChannelAction(user LocalUser, channel, action string) *Error {
	now := c.host.NowWallclock()
	env := NewEnvelope(now, c.cfg.MUDName, KindChannel)
	env.From.User = user.Name()
	env.Payload = envelope.NewBuilder().Str("channel", channel).Str("action", action).Bytes()
	return c.sendEnvelope(env)
}

// Channel sends a message to a channel the local user has already joined.
func (c *Client) Channel(user LocalUser, channelName, message string) *Error {
	if !c.cfg.FeatureChannel {
		return newError(KindPermission, "channel is disabled")
	}
	if err := c.authorize(user, CapUseChannel, c.cfg.MinLevelChannel); err != nil {
		return err
	}
	if !c.channels.IsMember(channelName, user.Name()) {
		return newError(KindPermission, "channel: must join %q first", channelName)
	}
	if len(message) > c.cfg.MaxMessageLen {
		return newError(KindCapacity, "channel: message exceeds max_message_len")
	}
	now := c.host.NowWallclock()
	if !c.limiter.Allow("channel", user.Name(), now.Unix()) {
		c.counters.RateLimited.Add(1)
		return newError(KindRateLimited, "channel: rate limit exceeded")
	}
	if c.cfg.FilterProfanity {
		message = c.host.FilterProfanity(message)
	}
	env := NewEnvelope(now, c.cfg.MUDName, KindChannel)
	env.From.User = user.Name()
	env.Payload = envelope.NewBuilder().
		Str("channel", channelName).
		Str("action", "message").
		Str("message", message).
		Bytes()
	if err := c.sendEnvelope(env); err != nil {
		return err
	}
	c.channelHistory.Append(history.Entry{
		Kind: "channel", From: user.Name() + "@" + c.cfg.MUDName, To: channelName,
		Message: message, Timestamp: now.Unix(),
	})
	c.host.Deliver(user, fmt.Sprintf("[%s] %s: %s", channelName, user.Name(), message), StyleChannel)
	return nil
}

// History dumps up to count recent entries for kind ("tell", "emote",
// "emoteto", "channel", ...).
func (c *Client) History(kind string, count int) []history.Entry {
	if kind == "channel" {
		return c.channelHistory.Recent(kind, count)
	}
	return c.history.Recent(kind, count)
}

// Reconnect forces an immediate disconnect and reconnect, resetting the
// consecutive-failure counter — the "reconnect" privileged command.
func (c *Client) Reconnect() *Error {
	c.reconnectRequested.Store(true)
	c.machine.ResetFailures()
	c.closeSess()
	return nil
}

// ---------------------------------------------------------------------------
// Inbound dispatch.
// ---------------------------------------------------------------------------

func (c *Client) buildHandlers() router.Handlers {
	return router.Handlers{
		OnTell:     c.handleTell,
		OnEmote:    c.handleEmote,
		OnEmoteTo:  c.handleEmoteTo,
		OnChannel:  c.handleChannel,
		OnWho:      func(id, fromMUD string, payload []byte) { c.handleDirectoryReply("who", id, fromMUD, payload) },
		OnFinger:   func(id, fromMUD string, payload []byte) { c.handleDirectoryReply("finger", id, fromMUD, payload) },
		OnLocate:   func(id, fromMUD string, payload []byte) { c.handleDirectoryReply("locate", id, fromMUD, payload) },
		OnPresence: c.handlePresence,
		OnAuth:     c.handleAuth,
		OnError:    c.handleError,
		// No ping/pong handlers: the heartbeat runs on WebSocket ping/pong
		// control frames, which the transport layer answers (auto pong
		// reply) and surfaces as liveness events. An inbound envelope of
		// type ping or pong is dropped: no pong envelope is sent back and
		// the liveness timestamps are not updated.
	}
}

func (c *Client) handleTell(id, fromMUD, fromUser, toUser string, payload []byte) {
	local, ok := c.host.FindLocalUser(toUser)
	if !ok {
		return
	}
	msg, _ := envelope.GetString(payload, "message")
	c.host.Deliver(local, fmt.Sprintf("%s@%s tells you: %s", fromUser, fromMUD, msg), StyleTell)
	c.history.Append(history.Entry{
		Kind: "tell", From: fromUser + "@" + fromMUD, To: toUser,
		Message: msg, Timestamp: c.host.NowWallclock().Unix(),
	})
}

func (c *Client) handleEmote(id, fromMUD, fromUser string, payload []byte) {
	action, _ := envelope.GetString(payload, "action")
	text := fmt.Sprintf("%s@%s %s", fromUser, fromMUD, action)
	c.host.ForEachOnlineUser(func(u LocalUser) {
		c.host.Deliver(u, text, StyleEmote)
	})
	c.history.Append(history.Entry{
		Kind: "emote", From: fromUser + "@" + fromMUD,
		Message: action, Timestamp: c.host.NowWallclock().Unix(),
	})
}

func (c *Client) handleEmoteTo(id, fromMUD, fromUser, toUser string, payload []byte) {
	local, ok := c.host.FindLocalUser(toUser)
	if !ok {
		return
	}
	action, _ := envelope.GetString(payload, "action")
	c.host.Deliver(local, fmt.Sprintf("%s@%s %s you", fromUser, fromMUD, action), StyleEmote)
}

func (c *Client) handleChannel(id, fromMUD, fromUser, channelName string, payload []byte) {
	action, _ := envelope.GetString(payload, "action")
	if action == "join" || action == "leave" {
		// Gateway-announced membership is informational only — local
		// membership authority stays local (Invariant a, §4.6).
		return
	}
	msg, _ := envelope.GetString(payload, "message")
	members := c.channels.Members(channelName)
	if len(members) == 0 {
		return
	}
	// Invariant 7 (§4.5): never double-deliver a player's own channel
	// message. Channel already echoes it locally when sent, so a gateway
	// that fans the same message back to its origin MUD must not have it
	// delivered a second time here.
	self := fromMUD == c.cfg.MUDName
	text := fmt.Sprintf("[%s] %s@%s: %s", channelName, fromUser, fromMUD, msg)
	delivered := false
	for _, m := range members {
		if self && m == fromUser {
			continue
		}
		if local, ok := c.host.FindLocalUser(m); ok {
			c.host.Deliver(local, text, StyleChannel)
			delivered = true
		}
	}
	if delivered {
		c.channelHistory.Append(history.Entry{
			Kind: "channel", From: fromUser + "@" + fromMUD, To: channelName,
			Message: msg, Timestamp: c.host.NowWallclock().Unix(),
		})
	}
}

func (c *Client) handleDirectoryReply(kind, id, fromMUD string, payload []byte) {
	if _, ok := c.correlator.Resolve(id); !ok {
		// No matching outstanding request (already answered, expired, or
		// unsolicited) — nothing to correlate it back to.
		return
	}
	requester, ok := c.takeRequester(id)
	if !ok {
		return
	}
	text := formatDirectoryReply(kind, fromMUD, payload)
	c.host.Deliver(requester, text, StyleInfo)
}

func formatDirectoryReply(kind, fromMUD string, payload []byte) string {
	switch kind {
	case "who":
		if count, ok := envelope.GetInt(payload, "count"); ok {
			return fmt.Sprintf("%s has %d user(s) online.", fromMUD, count)
		}
		return fmt.Sprintf("%s replied to your who request.", fromMUD)
	case "finger":
		if name, ok := envelope.GetString(payload, "username"); ok {
			idle, _ := envelope.GetInt(payload, "idle")
			return fmt.Sprintf("%s@%s: idle %ds.", name, fromMUD, idle)
		}
		return fmt.Sprintf("%s replied to your finger request.", fromMUD)
	case "locate":
		if mud, ok := envelope.GetString(payload, "mud"); ok {
			return fmt.Sprintf("found on %s.", mud)
		}
		return "user not found on the mesh."
	default:
		return fmt.Sprintf("%s sent a %s reply.", fromMUD, kind)
	}
}

func (c *Client) handlePresence(id, fromMUD string, payload []byte) {
	user, ok := envelope.GetString(payload, "user")
	if !ok {
		return
	}
	idle, _ := envelope.GetInt(payload, "idle")
	c.dir.PutUser(directory.RemoteUser{Name: user, MUD: fromMUD, Idle: idle}, c.host.NowWallclock().Unix(), 0)
}

func (c *Client) handleAuth(id, fromMUD string, payload []byte) {
	// Open Question (a): the gateway's success/failure payload shape for
	// auth is undefined by source; this treats any auth envelope without
	// payload.error or payload.code as success.
	if envelope.Has(payload, "error") {
		msg, _ := envelope.GetString(payload, "error")
		c.host.Log(LogError, "[mesh] auth rejected: "+msg)
		c.closeSess()
		return
	}
	if envelope.Has(payload, "code") {
		c.host.Log(LogError, "[mesh] auth rejected")
		c.closeSess()
		return
	}
	c.machine.Transition(state.Authenticated)
	c.host.Log(LogInfo, "[mesh] authenticated with gateway")
}

func (c *Client) handleError(id, fromMUD string, payload []byte) {
	msg, _ := envelope.GetString(payload, "message")
	c.host.Log(LogWarn, fmt.Sprintf("[mesh] error from %s: %s", fromMUD, msg))
}
