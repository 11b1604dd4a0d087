package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/store"
)

const (
	GuestName    = "Guest"
	UnknownModel = "Unknown"

	// FailureReply is shown when a message could not be answered.
	FailureReply = "Something went wrong while answering. Please try again."
)

type CustomerDirectory interface {
	GetCustomerProfile(ctx context.Context, userID int64) (*store.CustomerProfile, error)
}

type ChatService struct {
	directory   CustomerDirectory
	agent       *Agent
	sessions    *SessionRegistry
	turnTimeout time.Duration
}

// NewChatService returns a service whose turns are cancelled after
// turnTimeout. A non-positive turnTimeout leaves turns unbounded.
func NewChatService(directory CustomerDirectory, agent *Agent, sessions *SessionRegistry, turnTimeout time.Duration) *ChatService {
	return &ChatService{
		directory:   directory,
		agent:       agent,
		sessions:    sessions,
		turnTimeout: turnTimeout,
	}
}

type SessionStart struct {
	Session      *Session
	Greeting     string
	UserName     string
	ProductModel string
	Family       family.Family
}

// ResolveUserID returns the explicit user_id parameter when present and
// otherwise the user_id query parameter of the referring page.
func ResolveUserID(queryValue, referer string) string {
	if v := strings.TrimSpace(queryValue); v != "" {
		return v
	}
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		log.WithError(err).Debug("could not parse referer")
		return ""
	}
	return strings.TrimSpace(u.Query().Get("user_id"))
}

// StartSession identifies the customer, infers their product family and
// opens a chat session. Identification problems fall back to a guest
// session; they are never errors.
func (s *ChatService) StartSession(ctx context.Context, rawUserID string) *SessionStart {
	userID, name, model := s.identify(ctx, rawUserID)
	fam := family.Infer(model)
	log.WithFields(log.Fields{"user_id": userID, "model": model, "family": fam}).Info("chat session starting")

	session := s.sessions.Create(
		SessionContext{UserID: userID, Family: fam},
		Conversation{UserName: name, ProductModel: model},
	)
	return &SessionStart{
		Session:      session,
		Greeting:     fmt.Sprintf("Hello **%s**! The technical assistant for your **%s** pressure cooker is ready.", name, model),
		UserName:     name,
		ProductModel: model,
		Family:       fam,
	}
}

func (s *ChatService) identify(ctx context.Context, rawUserID string) (int64, string, string) {
	if rawUserID == "" {
		return 0, GuestName, UnknownModel
	}
	logger := log.WithField("raw_user_id", rawUserID)

	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		logger.Warn("ignoring malformed user id")
		return 0, GuestName, UnknownModel
	}
	profile, err := s.directory.GetCustomerProfile(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("customer lookup failed")
		return 0, GuestName, UnknownModel
	}
	if profile == nil {
		logger.Warn("unknown customer")
		return 0, GuestName, UnknownModel
	}

	name := profile.FullName()
	if name == "" {
		name = GuestName
	}
	model := profile.ProductModel
	if model == "" {
		model = UnknownModel
	}
	return userID, name, model
}

// PostMessage runs one conversational turn. Orchestration failures are
// logged and answered with FailureReply, leaving the conversation as it was.
func (s *ChatService) PostMessage(ctx context.Context, sessionID, content string) (string, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.lastActive = s.sessions.now()

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	turn, reply, err := s.agent.RunTurn(ctx, session.Context, session.conversation, content)
	if err != nil {
		logger := log.WithError(err).WithField("session", sessionID)
		switch {
		case errors.Is(err, ErrNotConverged):
			logger.Warn("assistant did not converge")
		case errors.Is(err, context.DeadlineExceeded):
			logger.WithField("timeout", s.turnTimeout).Warn("turn timed out")
		default:
			logger.Error("failed to answer message")
		}
		return FailureReply, nil
	}

	session.conversation.Messages = append(session.conversation.Messages, turn...)
	return reply, nil
}

func (s *ChatService) EndSession(sessionID string) error {
	return s.sessions.End(sessionID)
}

func (s *ChatService) Sessions() *SessionRegistry {
	return s.sessions
}
