// Package messaging coordinates the denormalized writes behind a chat: the
// conversation record, its message log and one inbox thread per participant.
//
// The message log is the source of truth. Conversation previews and threads
// are projections written after it; they converge on the next send when a
// write is lost, and nothing is rolled back.
package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

const (
	// DefaultSenderName labels messages from users without a profile name.
	DefaultSenderName = "Me"
	// UnknownLabel labels a thread whose counterpart has no profile name.
	UnknownLabel = "Unknown"

	defaultStepTimeout  = 10 * time.Second
	defaultRetryBackoff = 100 * time.Millisecond
)

// Profiles is the read access to user profiles the coordinator needs.
type Profiles interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	DisplayName(ctx context.Context, userID string) (string, error)
	Lookup(ctx context.Context, ids []string) ([]models.Profile, error)
}

type Options struct {
	// BatchFanout commits all thread writes of one operation as a single
	// atomic batch instead of one write per participant.
	BatchFanout bool
	// PreviewRetries is how many extra attempts best-effort steps get on a
	// transient failure.
	PreviewRetries    int
	DefaultSenderName string
	StepTimeout       time.Duration
	RetryBackoff      time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
	// Observer receives every step result, in execution order per flow.
	Observer func(StepResult)
}

// Coordinator implements the multi-document messaging operations.
type Coordinator struct {
	store         docstore.Store
	profiles      Profiles
	conversations *ConversationStore
	messages      *MessageLog
	threads       *ThreadProjection
	log           *zap.SugaredLogger

	batchFanout       bool
	previewRetries    int
	defaultSenderName string
	stepTimeout       time.Duration
	retryBackoff      time.Duration
	clock             func() time.Time
	observer          func(StepResult)
}

func NewCoordinator(store docstore.Store, profiles Profiles, log *zap.SugaredLogger, opts Options) *Coordinator {
	c := &Coordinator{
		store:             store,
		profiles:          profiles,
		conversations:     NewConversationStore(store),
		messages:          NewMessageLog(store),
		threads:           NewThreadProjection(store),
		log:               log,
		batchFanout:       opts.BatchFanout,
		previewRetries:    max(opts.PreviewRetries, 0),
		defaultSenderName: strings.TrimSpace(opts.DefaultSenderName),
		stepTimeout:       opts.StepTimeout,
		retryBackoff:      opts.RetryBackoff,
		clock:             opts.Clock,
		observer:          opts.Observer,
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	if c.defaultSenderName == "" {
		c.defaultSenderName = DefaultSenderName
	}
	if c.stepTimeout <= 0 {
		c.stepTimeout = defaultStepTimeout
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

func (c *Coordinator) now() time.Time {
	return c.clock().UTC()
}

func validID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

// storeError turns a failed first step into the error reported to the caller.
func storeError(msg string, err error) error {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	if docstore.IsTransient(err) {
		return apperrors.Wrap(apperrors.CodeUnavailable, msg, err)
	}
	return apperrors.Internal(msg, err)
}

// ownedThread is a thread together with the user whose inbox holds it.
type ownedThread struct {
	owner  string
	thread models.Thread
}

// StartConversation creates a conversation between initiatorID and
// counterpartID plus one thread for each of them. counterpartLabel names the
// conversation in the initiator's inbox and initiatorLabel in the
// counterpart's; blank labels are resolved from profiles.
//
// Only the conversation write is reported. A failed thread write is logged
// and leaves that participant without a thread until their next send.
func (c *Coordinator) StartConversation(ctx context.Context, initiatorID, counterpartID, counterpartLabel, initiatorLabel string) (string, error) {
	if initiatorID == "" {
		return "", apperrors.Unauthenticated("no current user")
	}
	if !validID(initiatorID) || !validID(counterpartID) {
		return "", apperrors.InvalidArg("invalid participant id")
	}
	if initiatorID == counterpartID {
		return "", apperrors.InvalidArg("cannot start a conversation with yourself")
	}
	ctx = context.WithoutCancel(ctx)

	counterpartLabel = c.resolveLabel(ctx, counterpartLabel, counterpartID, UnknownLabel)
	initiatorLabel = c.resolveLabel(ctx, initiatorLabel, initiatorID, c.defaultSenderName)

	now := c.now()
	s := c.newSaga("start_conversation", "")
	var conversationID string
	res := s.run(ctx, StepCreateConversation, initiatorID, 0, func(ctx context.Context) error {
		id, err := c.conversations.Create(ctx, models.Conversation{
			Participants: []string{initiatorID, counterpartID},
			CreatedAt:    now,
		})
		conversationID = id
		return err
	})
	if res.Err != nil {
		return "", storeError("conversation not created", res.Err)
	}
	s.conversationID = conversationID

	c.createThreads(ctx, s, []ownedThread{
		{owner: initiatorID, thread: models.Thread{
			ConversationID:   conversationID,
			ConversationName: counterpartLabel,
			LastRead:         now,
			UnreadCount:      0,
		}},
		{owner: counterpartID, thread: models.Thread{
			ConversationID:   conversationID,
			ConversationName: initiatorLabel,
			LastRead:         models.NeverRead,
			UnreadCount:      1,
		}},
	})
	return conversationID, nil
}

// resolveLabel returns label, or the display name of userID when label is
// blank, or fallback when neither is available.
func (c *Coordinator) resolveLabel(ctx context.Context, label, userID, fallback string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	name, err := c.profiles.DisplayName(ctx, userID)
	if err != nil {
		c.log.Warnw("label lookup failed", "user", userID, "error", err)
	}
	if name == "" {
		return fallback
	}
	return name
}

func (c *Coordinator) createThreads(ctx context.Context, s *saga, threads []ownedThread) {
	if c.batchFanout {
		s.run(ctx, StepCreateThread, "*", c.previewRetries, func(ctx context.Context) error {
			b := docstore.NewBatch(c.store)
			for _, ot := range threads {
				b.Set(models.ThreadRef(ot.owner, ot.thread.ConversationID), ot.thread)
			}
			return b.Commit(ctx)
		})
		return
	}
	var wg sync.WaitGroup
	for _, ot := range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, StepCreateThread, ot.owner, c.previewRetries, func(ctx context.Context) error {
				return c.threads.Create(ctx, ot.owner, ot.thread)
			})
		}()
	}
	wg.Wait()
}

// SendMessage appends text to the conversation's message log, then
// refreshes the conversation preview and every participant's thread.
//
// An error means nothing was written. Once the message is appended the call
// succeeds; preview and thread failures are logged only.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID, senderID, text string) error {
	if senderID == "" {
		return apperrors.Unauthenticated("no current user")
	}
	if !validID(conversationID) {
		return apperrors.InvalidArg("invalid conversation id")
	}
	if strings.TrimSpace(text) == "" {
		return apperrors.InvalidArg("message text is empty")
	}
	ctx = context.WithoutCancel(ctx)
	s := c.newSaga("send_message", conversationID)

	var conv *models.Conversation
	res := s.run(ctx, StepLoadConversation, conversationID, 0, func(ctx context.Context) error {
		var err error
		conv, err = c.conversations.Get(ctx, conversationID)
		return err
	})
	if res.Err != nil {
		return storeError("message not sent", res.Err)
	}
	if !conv.HasParticipant(senderID) {
		return apperrors.Forbidden("not a participant of this conversation")
	}

	var senderName string
	res = s.run(ctx, StepResolveSender, senderID, 0, func(ctx context.Context) error {
		var err error
		senderName, err = c.profiles.DisplayName(ctx, senderID)
		return err
	})
	if res.Err != nil {
		return storeError("message not sent", res.Err)
	}
	if senderName == "" {
		senderName = c.defaultSenderName
	}

	now := c.now()
	res = s.run(ctx, StepAppendMessage, senderID, 0, func(ctx context.Context) error {
		_, err := c.messages.Append(ctx, conversationID, models.Message{
			SenderID:   senderID,
			SenderName: senderName,
			Text:       text,
			CreatedAt:  now,
		})
		return err
	})
	if res.Err != nil {
		return storeError("message not sent", res.Err)
	}

	preview := models.LastMessage{Text: text, Timestamp: now, SenderName: senderName}
	s.run(ctx, StepUpdatePreview, conversationID, c.previewRetries, func(ctx context.Context) error {
		return c.conversations.SetLastMessage(ctx, conversationID, preview)
	})

	participants := conv.Participants
	s.run(ctx, StepReadParticipants, conversationID, c.previewRetries, func(ctx context.Context) error {
		fresh, err := c.conversations.Get(ctx, conversationID)
		if err == nil {
			participants = fresh.Participants
		}
		return err
	})
	c.fanOut(ctx, s, conversationID, senderID, participants, preview, now)
	return nil
}

func (c *Coordinator) fanOut(ctx context.Context, s *saga, conversationID, senderID string, participants []string, preview models.LastMessage, now time.Time) {
	if c.batchFanout {
		res := s.run(ctx, StepThreadFanout, "*", c.previewRetries, func(ctx context.Context) error {
			b := docstore.NewBatch(c.store)
			for _, p := range participants {
				b.Update(models.ThreadRef(p, conversationID), sendFields(p == senderID, preview, now))
			}
			return b.Commit(ctx)
		})
		// A missing thread rejects the whole batch. The per-participant
		// path below recreates it.
		if !errors.Is(res.Err, docstore.ErrNotFound) {
			return
		}
	}

	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, StepThreadFanout, p, c.previewRetries, func(ctx context.Context) error {
				return c.applySend(ctx, conversationID, p, senderID, participants, preview, now)
			})
		}()
	}
	wg.Wait()
}

// applySend updates owner's thread, recreating it when an earlier
// creation was lost.
func (c *Coordinator) applySend(ctx context.Context, conversationID, owner, senderID string, participants []string, preview models.LastMessage, now time.Time) error {
	isSender := owner == senderID
	err := c.threads.ApplySend(ctx, owner, conversationID, isSender, preview, now)
	if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	c.log.Infow("recreating missing thread", "conversation", conversationID, "owner", owner)
	t := models.Thread{
		ConversationID:   conversationID,
		ConversationName: c.counterpartLabel(ctx, owner, participants),
		LastRead:         models.NeverRead,
		UnreadCount:      1,
		LastMessage:      &preview,
	}
	if isSender {
		t.LastRead = now
		t.UnreadCount = 0
	}
	return c.threads.Create(ctx, owner, t)
}

func (c *Coordinator) counterpartLabel(ctx context.Context, owner string, participants []string) string {
	for _, p := range participants {
		if p == owner {
			continue
		}
		if name, err := c.profiles.DisplayName(ctx, p); err == nil && name != "" {
			return name
		}
	}
	return UnknownLabel
}

// MarkRead records that userID has seen the conversation.
func (c *Coordinator) MarkRead(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return apperrors.Unauthenticated("no current user")
	}
	if !validID(conversationID) {
		return apperrors.InvalidArg("invalid conversation id")
	}
	ctx = context.WithoutCancel(ctx)
	s := c.newSaga("mark_read", conversationID)
	res := s.run(ctx, StepMarkRead, userID, 0, func(ctx context.Context) error {
		return c.threads.MarkRead(ctx, userID, conversationID, c.now())
	})
	if errors.Is(res.Err, docstore.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, "thread not found", res.Err)
	}
	if res.Err != nil {
		return storeError("thread not updated", res.Err)
	}
	return nil
}

// Conversation returns the conversation if userID participates in it.
func (c *Coordinator) Conversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, apperrors.Unauthenticated("no current user")
	}
	if !validID(conversationID) {
		return nil, apperrors.InvalidArg("invalid conversation id")
	}
	conv, err := c.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, storeError("conversation not loaded", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

// Inbox returns the user's threads, most recent activity first.
func (c *Coordinator) Inbox(ctx context.Context, userID string) ([]models.Thread, error) {
	if userID == "" {
		return nil, apperrors.Unauthenticated("no current user")
	}
	threads, err := c.threads.List(ctx, userID)
	if err != nil {
		return nil, storeError("inbox not loaded", err)
	}
	return threads, nil
}

// Transcript returns every message of the conversation, oldest first.
// userID must participate in the conversation.
func (c *Coordinator) Transcript(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	if _, err := c.Conversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := c.messages.List(ctx, conversationID)
	if err != nil {
		return nil, storeError("messages not loaded", err)
	}
	return msgs, nil
}

// SubscribeInbox streams the user's threads until the feed is closed or
// ctx ends.
func (c *Coordinator) SubscribeInbox(ctx context.Context, userID string) (*Feed[models.Thread], error) {
	if userID == "" {
		return nil, apperrors.Unauthenticated("no current user")
	}
	feed, err := c.threads.Subscribe(ctx, userID)
	if err != nil {
		return nil, storeError("inbox subscription failed", err)
	}
	return feed, nil
}

// SubscribeMessages streams the conversation transcript until the feed is
// closed or ctx ends. userID must participate in the conversation.
func (c *Coordinator) SubscribeMessages(ctx context.Context, conversationID, userID string) (*Feed[models.Message], error) {
	if _, err := c.Conversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	feed, err := c.messages.Subscribe(ctx, conversationID)
	if err != nil {
		return nil, storeError("message subscription failed", err)
	}
	return feed, nil
}
