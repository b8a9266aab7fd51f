package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/clio-agent/clio/internal/logging"
	"github.com/rs/zerolog"
)

const (
	heartbeatInterval  = 30 * time.Second
	disconnectTimeout  = 120 * time.Second
)

// connState tracks one connected client as seen by the event loop.
type connState struct {
	agentID      string
	conn         net.Conn
	enc          *json.Encoder
	lastHeartbeat time.Time
	outbound     chan Frame
	closed       chan struct{}
}

// Server is the single-process coordination broker (spec §4.4): one
// net.Listener accept loop spawns a reader goroutine per connection, but
// every state mutation (locks, API slots, message bus) happens on a single
// event-loop goroutine fed by a shared inbound channel, so lockTables and
// apiState need no internal mutex of their own.
type Server struct {
	listener net.Listener
	locks    *lockTables
	api      *apiState
	bus      *messageBus

	inbound chan inboundFrame

	mu    sync.Mutex
	conns map[string]*connState // agent_id -> conn

	log zerolog.Logger
}

type inboundFrame struct {
	agentID string
	frame   Frame
}

// NewServer binds sockAddr (a unix socket path) and
// constructs the broker's in-memory state tables.
func NewServer(sockAddr string, maxParallelAPI int, targetQuota float64) (*Server, error) {
	ln, err := net.Listen("unix", sockAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		locks:    newLockTables(),
		api:      newAPIState(maxParallelAPI, targetQuota),
		bus:      newMessageBus(),
		inbound:  make(chan inboundFrame, 256),
		conns:    make(map[string]*connState),
		log:      logging.Component("broker"),
	}, nil
}

// Run accepts connections and drives the single event loop until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.loop(ctx)
	go s.reapDeadConns(ctx)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) Close() error {
	return s.listener.Close()
}

// handleConn reads newline-delimited Frame objects from one connection
// until register, then forwards every frame onto the shared inbound
// channel for the event loop to process. A bad-JSON line gets an error
// frame back; the connection is kept open (spec §4.4: malformed frames do
// not terminate the session).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	cs := &connState{conn: conn, enc: json.NewEncoder(conn), outbound: make(chan Frame, 64), closed: make(chan struct{})}
	go s.writePump(cs)

	var agentID string
	for scanner.Scan() {
		var f Frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			cs.outbound <- Frame{Type: FrameError, Payload: mustJSON(ErrorPayload{Message: "malformed frame: " + err.Error()})}
			continue
		}
		if f.Type == FrameRegister && agentID == "" {
			var p RegisterPayload
			_ = json.Unmarshal(f.Payload, &p)
			agentID = p.AgentID
			s.mu.Lock()
			cs.agentID = agentID
			cs.lastHeartbeat = time.Now()
			s.conns[agentID] = cs
			s.mu.Unlock()
		}
		if agentID == "" {
			continue // frames before registration are dropped
		}
		s.inbound <- inboundFrame{agentID: agentID, frame: f}
	}

	s.disconnect(agentID)
	close(cs.closed)
}

func (s *Server) writePump(cs *connState) {
	for {
		select {
		case f := <-cs.outbound:
			if err := cs.enc.Encode(f); err != nil {
				return
			}
		case <-cs.closed:
			return
		}
	}
}

// disconnect releases every resource the departing agent held: file
// locks, the git lock, in-flight API accounting, and its inbox — run
// through the single event loop goroutine via the inbound channel so it
// participates in the same serialization as every other state mutation.
func (s *Server) disconnect(agentID string) {
	if agentID == "" {
		return
	}
	s.inbound <- inboundFrame{agentID: agentID, frame: Frame{Type: "__disconnect"}}
}

// reapDeadConns watches for clients that stopped heartbeating and forces
// their disconnect path.
func (s *Server) reapDeadConns(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			var dead []string
			for id, cs := range s.conns {
				if now.Sub(cs.lastHeartbeat) > disconnectTimeout {
					dead = append(dead, id)
				}
			}
			s.mu.Unlock()
			for _, id := range dead {
				s.disconnect(id)
			}
		}
	}
}

// loop is the single goroutine that owns locks, api, and bus state.
func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.inbound:
			s.handleFrame(in.agentID, in.frame)
		}
	}
}

func (s *Server) handleFrame(agentID string, f Frame) {
	now := time.Now()
	reply := func(ft FrameType, payload any) {
		s.mu.Lock()
		cs, ok := s.conns[agentID]
		s.mu.Unlock()
		if !ok {
			return
		}
		select {
		case cs.outbound <- Frame{ID: f.ID, Type: ft, Payload: mustJSON(payload)}:
		default:
		}
	}

	switch f.Type {
	case "__disconnect":
		s.locks.releaseAllFileLocks(agentID)
		s.locks.releaseGitLockIfHeldBy(agentID)
		s.bus.mu.Lock()
		delete(s.bus.inboxes, agentID)
		s.bus.mu.Unlock()
		s.mu.Lock()
		delete(s.conns, agentID)
		s.mu.Unlock()

	case FrameRegister:
		reply(FrameAck, AckPayload{RequestType: FrameRegister, Success: true})

	case FrameHeartbeat:
		s.mu.Lock()
		if cs, ok := s.conns[agentID]; ok {
			cs.lastHeartbeat = now
		}
		s.mu.Unlock()
		reply(FrameAck, AckPayload{RequestType: FrameHeartbeat, Success: true})

	case FrameRequestFileLock:
		var p RequestFileLockPayload
		_ = json.Unmarshal(f.Payload, &p)
		id, blocked := s.locks.requestFileLock(agentID, p.Files, p.Mode, now)
		if blocked != nil {
			reply(FrameLockDenied, LockDeniedPayload{Blocked: blocked})
		} else {
			reply(FrameLockGranted, LockGrantedPayload{LockID: id, Files: p.Files})
		}

	case FrameReleaseFileLock:
		var p ReleaseFileLockPayload
		_ = json.Unmarshal(f.Payload, &p)
		s.locks.releaseFileLock(agentID, p.Files)
		reply(FrameAck, AckPayload{RequestType: FrameReleaseFileLock, Success: true})

	case FrameRequestGitLock:
		id, heldBy, ok := s.locks.requestGitLock(agentID, now)
		if !ok {
			reply(FrameGitLockDenied, GitLockDeniedPayload{HeldBy: heldBy})
		} else {
			reply(FrameGitLockGranted, GitLockGrantedPayload{LockID: id})
		}

	case FrameReleaseGitLock:
		s.locks.releaseGitLock(agentID)
		reply(FrameAck, AckPayload{RequestType: FrameReleaseGitLock, Success: true})

	case FrameRequestAPISlot:
		granted, wait, reason := s.api.requestSlot(now)
		if granted {
			reply(FrameAPISlotGranted, APISlotGrantedPayload{Delay: 0})
		} else {
			reply(FrameAPISlotWait, APISlotWaitPayload{Delay: wait.Seconds(), Reason: reason, InFlight: s.api.inFlight})
		}

	case FrameReleaseAPISlot:
		var p ReleaseAPISlotPayload
		_ = json.Unmarshal(f.Payload, &p)
		s.api.releaseSlot(now, p.Headers, p.Status)
		reply(FrameAck, AckPayload{RequestType: FrameReleaseAPISlot, Success: true})

	case FrameSendMessage:
		var p SendMessagePayload
		_ = json.Unmarshal(f.Payload, &p)
		if _, err := s.bus.send(agentID, p.To, p.Type, p.Content, now); err != nil {
			reply(FrameError, ErrorPayload{Message: err.Error()})
		} else {
			reply(FrameAck, AckPayload{RequestType: FrameSendMessage, Success: true})
		}

	case FramePollInbox:
		reply(FrameInbox, InboxPayload{Messages: s.bus.poll(agentID)})

	case FramePollUserInbox:
		reply(FrameUserInbox, InboxPayload{Messages: s.bus.pollUser()})

	case FrameAcknowledge:
		var p AcknowledgePayload
		_ = json.Unmarshal(f.Payload, &p)
		s.bus.acknowledge(p.IDs, p.All)
		reply(FrameAck, AckPayload{RequestType: FrameAcknowledge, Success: true})

	case FrameGetHistory:
		reply(FrameInbox, InboxPayload{Messages: s.bus.history()})

	case FrameGetStatus:
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		reply(FrameStatus, StatusPayload{
			Agents:      n,
			FileLocks:   len(s.locks.files),
			GitLocked:   s.locks.git != nil,
			APIInFlight: s.api.inFlight,
		})

	default:
		reply(FrameError, ErrorPayload{Message: "unknown frame type: " + string(f.Type)})
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
