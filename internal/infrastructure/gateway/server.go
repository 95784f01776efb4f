package gateway

import (
	"context"
	"net/http"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/internal/core/services"
	"relaygate/internal/infrastructure/monitoring"
	"relaygate/pkg/config"
	apperrors "relaygate/pkg/errors"
	rlog "relaygate/pkg/logger"
	"relaygate/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts websocket handshakes, authenticates the actor, and drives
// the per-connection command loop.
type Server struct {
	cfg      *config.Config
	auth     services.ActorAuthenticator
	catalog  *services.Catalog
	registry *services.ConnectionRegistry
	pipeline *services.PublishPipeline
	admin    *services.ModerationAdmin
	broker   *services.MediaSessionBroker
	hub      *Hub
	metrics  *monitoring.PrometheusCollector

	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
	ctxLog   *rlog.ContextLogger
}

func NewServer(
	cfg *config.Config,
	auth services.ActorAuthenticator,
	catalog *services.Catalog,
	registry *services.ConnectionRegistry,
	pipeline *services.PublishPipeline,
	admin *services.ModerationAdmin,
	broker *services.MediaSessionBroker,
	hub *Hub,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     auth,
		catalog:  catalog,
		registry: registry,
		pipeline: pipeline,
		admin:    admin,
		broker:   broker,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
		ctxLog:   rlog.NewContextLogger(logger.Desugar()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Auth.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) namespaceEnabled(ns domain.Namespace) bool {
	switch ns {
	case domain.NamespaceChat:
		return s.cfg.Namespaces.Chat
	case domain.NamespaceVoice:
		return s.cfg.Namespaces.Voice
	case domain.NamespaceEvents:
		return s.cfg.Namespaces.Events
	case domain.NamespaceModeration:
		return s.cfg.Namespaces.Moderation
	default:
		return false
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// HandleWebSocket authenticates the handshake, upgrades the connection, and
// runs the command loop until the peer disconnects or the session is evicted.
func (s *Server) HandleWebSocket(c *gin.Context) {
	r := c.Request
	w := c.Writer

	ns, err := ParseNamespace(r.URL.Query().Get("namespace"))
	if err != nil || !s.namespaceEnabled(ns) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown namespace"})
		return
	}

	actor, err := s.auth.Resolve(services.Handshake{
		BearerToken: bearerToken(r),
		RemoteAddr:  r.RemoteAddr,
	})
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	// The moderation namespace is gated at handshake time, not per command.
	if ns == domain.NamespaceModeration && !domain.CanModerate(actor) {
		c.JSON(http.StatusForbidden, gin.H{"error": "moderation access denied"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	meta := domain.ConnectionMeta{
		ID:          domain.ConnectionID(utils.GenerateConnectionID()),
		ActorID:     actor.ID,
		Namespace:   ns,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}
	session := NewSession(meta, actor, conn, s.cfg.Server.WriteTimeout)

	if s.cfg.Gateway.MaxMessageSizeBytes > 0 {
		conn.SetReadLimit(s.cfg.Gateway.MaxMessageSizeBytes)
	}

	ctx := context.WithoutCancel(r.Context())
	ctx = rlog.WithRequestID(ctx, utils.GenerateRequestID())
	ctx = rlog.WithActorID(ctx, string(actor.ID))
	ctx = rlog.WithConnectionID(ctx, string(meta.ID))

	s.registry.Register(ctx, meta, session)
	s.metrics.RecordConnection()
	s.metrics.SetActorsOnline(s.registry.ConnectedActorCount())

	s.ctxLog.LogInfo(ctx, "connection established", zap.String("namespace", string(ns)))

	// The visible channel set is fixed at accept time; catalog changes apply
	// to new connections only.
	allowed := s.allowedChannels(ns, actor)
	s.sendChannelList(session, ns, allowed)

	s.runLoop(ctx, session, allowed)

	session.Close("closed")
	s.hub.RemoveSession(session)
	s.registry.Unregister(ctx, actor.ID, meta.ID, "disconnect")
	s.metrics.RecordDisconnect()
	s.metrics.SetActorsOnline(s.registry.ConnectedActorCount())

	s.ctxLog.LogInfo(ctx, "connection closed")
}

func (s *Server) allowedChannels(ns domain.Namespace, actor *domain.Actor) map[string]*domain.ChannelDefinition {
	var defs []*domain.ChannelDefinition
	if ns == domain.NamespaceModeration {
		defs = s.catalog.ModerationChannelsFor(actor)
	} else {
		defs = s.catalog.ChannelsFor(actor)
	}

	allowed := make(map[string]*domain.ChannelDefinition, len(defs))
	for _, def := range defs {
		allowed[def.Slug] = def
	}
	return allowed
}

func (s *Server) sendChannelList(session *Session, ns domain.Namespace, allowed map[string]*domain.ChannelDefinition) {
	slugs := make([]string, 0, len(allowed))
	for slug := range allowed {
		slugs = append(slugs, slug)
	}

	payload := map[string]interface{}{
		"channels": slugs,
		"default":  s.catalog.DefaultChannel(),
	}
	if ns == domain.NamespaceVoice {
		rooms := make([]string, 0)
		for _, room := range s.catalog.RoomsFor(session.actor) {
			rooms = append(rooms, room.Slug)
		}
		payload["rooms"] = rooms
	}

	if err := session.Send(ports.ServerEvent{
		Event:     ports.EventChannels,
		Namespace: ns,
		Payload:   payload,
	}); err != nil {
		s.logger.Debugw("channel list send failed", "connection_id", session.meta.ID, "error", err)
	}
}

func (s *Server) runLoop(ctx context.Context, session *Session, allowed map[string]*domain.ChannelDefinition) {
	conn := session.conn

	conn.SetReadDeadline(time.Now().Add(s.cfg.Gateway.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.Gateway.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.Gateway.PingInterval)
	defer pingTicker.Stop()

	cmdChan := make(chan ClientCommand, 10)
	errChan := make(chan error, 1)

	go func() {
		for {
			var cmd ClientCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				errChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.Gateway.PongTimeout))
			cmdChan <- cmd
		}
	}()

	for {
		select {
		case cmd := <-cmdChan:
			s.handleCommand(ctx, session, allowed, cmd)

		case <-pingTicker.C:
			if err := session.Ping(); err != nil {
				return
			}

		case <-session.Done():
			return

		case err := <-errChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.ctxLog.LogWarn(ctx, "read failed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) handleCommand(ctx context.Context, session *Session, allowed map[string]*domain.ChannelDefinition, cmd ClientCommand) {
	ns := session.meta.Namespace
	actor := session.actor

	switch cmd.Action {
	case ActionListChannels:
		s.sendChannelList(session, ns, allowed)

	case ActionJoin:
		if _, ok := allowed[cmd.Channel]; !ok {
			s.sendError(session, cmd.Action, apperrors.NewForbiddenError("channel access denied"))
			return
		}
		s.hub.Join(ns, cmd.Channel, session)

	case ActionLeave:
		s.hub.Leave(ns, cmd.Channel, session)

	case ActionPublish:
		started := time.Now()
		msg, err := s.pipeline.Publish(ctx, services.PublishRequest{
			Actor:       actor,
			Namespace:   ns,
			ChannelSlug: cmd.Channel,
			Body:        cmd.Body,
			Type:        cmd.Type,
			Metadata:    cmd.Metadata,
		})
		s.metrics.ObservePublishDuration(time.Since(started))
		if err != nil {
			s.metrics.RecordPublishRejected(string(apperrors.CodeOf(err)))
			s.sendError(session, cmd.Action, err)
			return
		}
		s.metrics.RecordMessage(string(msg.Status))

	case ActionAck:
		if err := s.pipeline.Acknowledge(ctx, actor, cmd.Channel); err != nil {
			s.sendError(session, cmd.Action, err)
		}

	case ActionHistory:
		messages, err := s.pipeline.ListRecent(ctx, actor, cmd.Channel, cmd.Limit)
		if err != nil {
			s.sendError(session, cmd.Action, err)
			return
		}
		session.Send(ports.ServerEvent{
			Event:     ports.EventHistory,
			Namespace: ns,
			Channel:   cmd.Channel,
			Payload:   messages,
		})

	case ActionTyping:
		if !s.hub.IsJoined(ns, cmd.Channel, session.meta.ID) {
			return
		}
		s.hub.BroadcastToChannel(ns, cmd.Channel, ports.ServerEvent{
			Event:     ports.EventTyping,
			Namespace: ns,
			Channel:   cmd.Channel,
			Payload: map[string]interface{}{
				"actor_id":  actor.ID,
				"is_typing": cmd.IsTyping,
			},
		})

	case ActionMute:
		until := time.Now().Add(time.Duration(cmd.MuteDurationSec) * time.Second)
		err := s.admin.MuteParticipant(ctx, actor, cmd.Channel, domain.ActorID(cmd.Target), until)
		if err != nil {
			s.sendError(session, cmd.Action, err)
			return
		}
		session.SendNotice(cmd.Action, "participant muted")

	case ActionRemoveMessage:
		err := s.admin.RemoveMessage(ctx, actor, cmd.Channel, domain.MessageID(cmd.MessageID), cmd.Reason)
		if err != nil {
			s.sendError(session, cmd.Action, err)
			return
		}
		session.SendNotice(cmd.Action, "message removed")

	case ActionVoiceJoin:
		ttl := time.Duration(cmd.TTLSec) * time.Second
		credentials, err := s.broker.Issue(ctx, cmd.Room, actor, cmd.Role, ttl)
		if err != nil {
			s.sendError(session, cmd.Action, err)
			return
		}
		s.metrics.RecordCredentialIssued()

		// Room membership follows credential issuance; a failed issue must
		// not leave the actor counted against room capacity.
		s.hub.Join(domain.NamespaceVoice, cmd.Room, session)
		session.Send(ports.ServerEvent{
			Event:     ports.EventNotice,
			Namespace: domain.NamespaceVoice,
			Channel:   cmd.Room,
			Payload: map[string]interface{}{
				"scope":       "voice",
				"credentials": credentials,
			},
		})

	case ActionVoiceLeave:
		s.hub.Leave(domain.NamespaceVoice, cmd.Room, session)

	default:
		s.sendError(session, cmd.Action, apperrors.NewInvalidInputError("unknown action"))
	}
}

// sendError maps a service error to a scoped envelope on the originating
// connection. Internal details never reach the client.
func (s *Server) sendError(session *Session, scope string, err error) {
	message := "internal error"
	if appErr := apperrors.GetAppError(err); appErr != nil {
		message = appErr.Message
	}
	if sendErr := session.SendError(scope, message); sendErr != nil {
		s.logger.Debugw("error envelope send failed",
			"connection_id", session.meta.ID,
			"error", sendErr,
		)
	}
}
