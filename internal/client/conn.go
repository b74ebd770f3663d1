package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected   = errors.New("live connection not established")
	ErrConnectionLost = errors.New("live connection lost")
	ErrAckTimeout     = errors.New("acknowledgement timed out")
	ErrNoRoom         = errors.New("no room open")
	ErrClientClosed   = errors.New("client closed")
)

// AckError is a rejection carried by a live acknowledgement.
type AckError struct {
	Code    string
	Message string
}

func (e *AckError) Error() string { return e.Code + ": " + e.Message }

// Rejections that a fallback retry would only repeat.
var definitiveCodes = map[string]bool{
	"not_a_member":     true,
	"unauthorized":     true,
	"forbidden":        true,
	"empty_content":    true,
	"content_too_long": true,
	"rate_limited":     true,
	"bad_user_id":      true,
	"bad_room_id":      true,
	"bad_payload":      true,
}

type Options struct {
	WSURL  string
	APIURL string
	User   domain.UserID

	AckTimeout        time.Duration
	RedialWait        time.Duration
	TypingInterval    time.Duration
	TypingIdle        time.Duration
	ProcessedCapacity int
	HistoryLimit      int
	MaxContentLen     int

	Dialer     *websocket.Dialer
	HTTPClient *http.Client

	OnPresence func(room domain.RoomID, count int)
	OnTyping   func(users []domain.UserID)
	OnChange   func(entries []Entry)
}

func (o *Options) setDefaults() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 3 * time.Second
	}
	if o.RedialWait <= 0 {
		o.RedialWait = 2 * time.Second
	}
	if o.TypingInterval <= 0 {
		o.TypingInterval = time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.MaxContentLen <= 0 {
		o.MaxContentLen = domain.DefaultMaxContentLen
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Client is one browsing session: a live connection with acknowledged sends,
// an HTTP fallback, and the timeline of the room being viewed.
type Client struct {
	opts     Options
	api      *API
	throttle *TypingThrottle
	typing   *TypingTracker

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	seq      int64
	waiters  map[int64]chan protocol.Ack
	room     domain.RoomID
	timeline *Timeline
	pager    *HistoryPager
	presence int

	writeMu sync.Mutex
}

func New(opts Options) (*Client, error) {
	if err := opts.User.Validate(); err != nil {
		return nil, err
	}
	if opts.WSURL == "" || opts.APIURL == "" {
		return nil, errors.New("client: WSURL and APIURL are required")
	}
	opts.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:     opts,
		api:      NewAPI(opts.APIURL, opts.HTTPClient),
		throttle: NewTypingThrottle(opts.TypingInterval),
		ctx:      ctx,
		cancel:   cancel,
		waiters:  make(map[int64]chan protocol.Ack),
	}
	c.typing = NewTypingTracker(opts.TypingIdle, opts.OnTyping)
	return c, nil
}

// Connect dials the live endpoint. A dropped connection is redialed in the
// background until Close, and the viewed room is joined again.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClientClosed
	}
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.WSURL, err)
	}
	c.mu.Lock()
	c.conn = conn
	room := c.room
	c.mu.Unlock()
	log.Info().Str("module", "client").Str("user", string(c.opts.User)).Msg("connected")

	go c.run(conn)
	if room != "" {
		go c.rejoin(room)
	}
	return nil
}

func (c *Client) rejoin(room domain.RoomID) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.AckTimeout)
	defer cancel()
	if err := c.join(ctx, room); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("room", string(room)).Msg("rejoin failed")
		return
	}
	c.catchUp(room)
}

// catchUp merges what was broadcast while the connection was down.
func (c *Client) catchUp(room domain.RoomID) {
	c.mu.Lock()
	tl := c.timeline
	c.mu.Unlock()
	if tl == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	msgs, err := c.api.Recent(ctx, room, c.opts.HistoryLimit)
	if err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("catch up")
		return
	}
	changed := false
	for _, m := range msgs {
		if tl.Receive(m) {
			changed = true
		}
	}
	if changed {
		c.notifyChange(tl)
	}
}

func (c *Client) run(conn *websocket.Conn) {
	c.readLoop(conn)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for seq, ch := range c.waiters {
		close(ch)
		delete(c.waiters, seq)
	}
	c.mu.Unlock()
	_ = conn.Close()

	for c.ctx.Err() == nil {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.RedialWait):
		}
		if err := c.dial(c.ctx); err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("redial failed")
			continue
		}
		return
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "client").Msg("connection dropped")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad event")
		return
	}
	switch env.Type {
	case protocol.TypeAck:
		var ack protocol.Ack
		if json.Unmarshal(data, &ack) == nil {
			c.onAck(ack)
		}
	case protocol.TypeMessage:
		var ev protocol.MessageEvent
		if json.Unmarshal(data, &ev) == nil {
			c.onMessage(ev.Message)
		}
	case protocol.TypePresence:
		var ev protocol.PresenceEvent
		if json.Unmarshal(data, &ev) == nil {
			c.onPresence(ev)
		}
	case protocol.TypeTyping, protocol.TypeStopTyping:
		var ev protocol.TypingEvent
		if json.Unmarshal(data, &ev) != nil || ev.UserID == c.opts.User {
			return
		}
		if env.Type == protocol.TypeTyping {
			c.typing.Typing(ev.UserID)
		} else {
			c.typing.Stop(ev.UserID)
		}
	case protocol.TypeError:
		var ev protocol.ErrorEvent
		_ = json.Unmarshal(data, &ev)
		log.Warn().Str("module", "client").Str("code", ev.Code).Msg(ev.Error)
	}
}

func (c *Client) onAck(ack protocol.Ack) {
	c.mu.Lock()
	ch, ok := c.waiters[ack.Seq]
	if ok {
		delete(c.waiters, ack.Seq)
		ch <- ack
	}
	tl := c.timeline
	c.mu.Unlock()
	if ok {
		return
	}
	// A send acknowledged after its waiter gave up; the fallback may still
	// be in flight for the same placeholder.
	if ack.OK && ack.Message != nil && ack.TempID != "" && tl != nil && ack.Message.RoomID == tl.room {
		tl.Confirm(ack.TempID, *ack.Message)
		c.notifyChange(tl)
	}
}

func (c *Client) onMessage(msg domain.Message) {
	c.mu.Lock()
	tl := c.timeline
	c.mu.Unlock()
	if tl == nil || msg.RoomID != tl.room {
		return
	}
	if tl.Receive(msg) {
		c.notifyChange(tl)
	}
}

func (c *Client) onPresence(ev protocol.PresenceEvent) {
	if ev.Admin {
		return
	}
	c.mu.Lock()
	if ev.RoomID != c.room {
		c.mu.Unlock()
		return
	}
	c.presence = ev.Count
	c.mu.Unlock()
	if c.opts.OnPresence != nil {
		c.opts.OnPresence(ev.RoomID, ev.Count)
	}
}

// Open switches the view to room: it joins over the live connection when
// there is one and loads the newest page of history.
func (c *Client) Open(ctx context.Context, room domain.RoomID) error {
	if err := room.Validate(); err != nil {
		return err
	}
	// each view dedups on its own; a revisited room renders its history again
	tl := NewTimeline(c.opts.User, room, NewProcessedSet(c.opts.ProcessedCapacity))
	pager := NewHistoryPager(c.api, tl, room, c.opts.User, c.opts.HistoryLimit)

	c.mu.Lock()
	c.room = room
	c.timeline = tl
	c.pager = pager
	c.presence = 0
	connected := c.conn != nil
	c.mu.Unlock()
	c.typing.Close()

	if connected {
		if err := c.join(ctx, room); err != nil {
			return err
		}
	}
	n, err := pager.LoadInitial(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		c.notifyChange(tl)
	}
	return nil
}

func (c *Client) join(ctx context.Context, room domain.RoomID) error {
	ack, err := c.request(ctx, func(seq int64) any {
		return protocol.JoinRequest{Type: protocol.TypeJoin, Seq: seq, RoomID: room, UserID: c.opts.User}
	})
	if err != nil {
		return err
	}
	if !ack.OK {
		return &AckError{Code: ack.Code, Message: ack.Error}
	}
	return nil
}

// LoadOlder prepends the next older page of the viewed room.
func (c *Client) LoadOlder(ctx context.Context) (int, error) {
	c.mu.Lock()
	pager, tl := c.pager, c.timeline
	c.mu.Unlock()
	if pager == nil {
		return 0, ErrNoRoom
	}
	n, err := pager.LoadOlder(ctx)
	if n > 0 {
		c.notifyChange(tl)
	}
	return n, err
}

// Send renders a placeholder at once and resolves it to exactly one
// confirmed message or removes it. A live acknowledgement that does not
// arrive within AckTimeout falls back to the HTTP route with the same
// client id; the live attempt is not cancelled.
func (c *Client) Send(ctx context.Context, content string) (Entry, error) {
	c.mu.Lock()
	tl, room := c.timeline, c.room
	c.mu.Unlock()
	if tl == nil {
		return Entry{}, ErrNoRoom
	}
	text, err := domain.ValidateContent(content, c.opts.MaxContentLen)
	if err != nil {
		return Entry{}, err
	}
	c.StopTyping()

	e := tl.AddPending(text)
	c.notifyChange(tl)

	msg, err := c.deliver(ctx, room, e.TempID, text)
	if err != nil {
		failed, _ := tl.Fail(e.TempID)
		c.notifyChange(tl)
		log.Info().Err(err).Str("module", "client").Str("room", string(room)).Msg("send failed")
		return failed, err
	}
	tl.Confirm(e.TempID, *msg)
	c.notifyChange(tl)
	return Entry{TempID: e.TempID, State: Confirmed, Message: *msg}, nil
}

func (c *Client) deliver(ctx context.Context, room domain.RoomID, tempID, text string) (*domain.Message, error) {
	ack, err := c.request(ctx, func(seq int64) any {
		return protocol.SendRequest{
			Type:     protocol.TypeSend,
			Seq:      seq,
			TempID:   tempID,
			RoomID:   room,
			SenderID: c.opts.User,
			Content:  text,
		}
	})
	switch {
	case err == nil && ack.OK && ack.Message != nil:
		return ack.Message, nil
	case err == nil && definitiveCodes[ack.Code]:
		return nil, &AckError{Code: ack.Code, Message: ack.Error}
	case err != nil && ctx.Err() != nil:
		return nil, err
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "client").Str("temp_id", tempID).Msg("live send unconfirmed, using fallback")
	}
	return c.api.PostMessage(ctx, room, c.opts.User, text, tempID)
}

// request writes one sequenced event and waits for its acknowledgement.
func (c *Client) request(ctx context.Context, build func(seq int64) any) (protocol.Ack, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return protocol.Ack{}, ErrNotConnected
	}
	c.seq++
	seq := c.seq
	ch := make(chan protocol.Ack, 1)
	c.waiters[seq] = ch
	c.mu.Unlock()

	if err := c.write(conn, build(seq)); err != nil {
		c.dropWaiter(seq, ch)
		return protocol.Ack{}, err
	}

	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()
	select {
	case ack, ok := <-ch:
		if !ok {
			return protocol.Ack{}, ErrConnectionLost
		}
		return ack, nil
	case <-timer.C:
		if ack, ok := c.dropWaiter(seq, ch); ok {
			return ack, nil
		}
		return protocol.Ack{}, ErrAckTimeout
	case <-ctx.Done():
		c.dropWaiter(seq, ch)
		return protocol.Ack{}, ctx.Err()
	}
}

// dropWaiter unregisters seq and returns an ack delivered just before.
func (c *Client) dropWaiter(seq int64, ch chan protocol.Ack) (protocol.Ack, bool) {
	c.mu.Lock()
	delete(c.waiters, seq)
	c.mu.Unlock()
	select {
	case ack, ok := <-ch:
		return ack, ok
	default:
		return protocol.Ack{}, false
	}
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.AckTimeout))
	return conn.WriteJSON(v)
}

func (c *Client) writeEvent(typ string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := c.write(conn, protocol.Envelope{Type: typ}); err != nil {
		log.Debug().Err(err).Str("module", "client").Str("type", typ).Msg("write event")
	}
}

// Keystroke signals typing, at most once per TypingInterval.
func (c *Client) Keystroke() {
	if c.throttle.Keystroke() {
		c.writeEvent(protocol.TypeTyping)
	}
}

func (c *Client) StopTyping() {
	if c.throttle.Stop() {
		c.writeEvent(protocol.TypeStopTyping)
	}
}

// Leave exits the viewed room and clears the view.
func (c *Client) Leave() {
	c.StopTyping()
	c.writeEvent(protocol.TypeLeave)
	c.mu.Lock()
	c.room, c.timeline, c.pager, c.presence = "", nil, nil, 0
	c.mu.Unlock()
	c.typing.Close()
}

// Presence is the last count received for the viewed room.
func (c *Client) Presence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

func (c *Client) Timeline() *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline
}

func (c *Client) Typing() []domain.UserID { return c.typing.Active() }

func (c *Client) Close() error {
	c.cancel()
	c.typing.Close()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) notifyChange(tl *Timeline) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(tl.Entries())
	}
}
