package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"docchat/internal/store"
	"docchat/pkg/ai"
	"docchat/pkg/domain"
)

const (
	// creditFloor is the minimum balance required to start an exchange.
	creditFloor = 500
	// historyLimit caps how many prior exchanges seed a new thread.
	historyLimit = 10

	defaultPacing = time.Millisecond
)

const (
	msgThreadNotFound      = "Thread not found"
	msgInsufficientCredits = "Insufficient credits. Please top up and try again."
	msgRateLimited         = "Contact admin as there are insufficient tokens in main account."
	msgNoAnswer            = "No relevant information found. Please try rephrasing your query."
)

// Conn is the JSON frame transport for one live session. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
}

// EventStream is a pull-based sequence of run events.
type EventStream interface {
	Recv() (ai.Event, error)
	RunID() string
	Close() error
}

// Client is the provider surface a session drives.
type Client interface {
	CreateThread(ctx context.Context, messages []ai.ThreadMessage, vectorStoreID string) (ai.Thread, error)
	CreateThreadMessage(ctx context.Context, threadID, role, content string) error
	StreamRun(ctx context.Context, threadID, assistantID, instructions string, temperature float64) (EventStream, error)
	GetRun(ctx context.Context, threadID, runID string) (ai.Run, error)
}

// Prompter resolves the active system prompt.
type Prompter interface {
	ChatPrompt(ctx context.Context) string
}

type providerClient struct {
	c *ai.Client
}

func (p providerClient) CreateThread(ctx context.Context, messages []ai.ThreadMessage, vectorStoreID string) (ai.Thread, error) {
	return p.c.CreateThread(ctx, messages, vectorStoreID)
}

func (p providerClient) CreateThreadMessage(ctx context.Context, threadID, role, content string) error {
	return p.c.CreateThreadMessage(ctx, threadID, role, content)
}

func (p providerClient) StreamRun(ctx context.Context, threadID, assistantID, instructions string, temperature float64) (EventStream, error) {
	return p.c.StreamRun(ctx, threadID, assistantID, instructions, temperature)
}

func (p providerClient) GetRun(ctx context.Context, threadID, runID string) (ai.Run, error) {
	return p.c.GetRun(ctx, threadID, runID)
}

// WrapClient adapts the concrete provider client to the session interface.
func WrapClient(c *ai.Client) Client {
	return providerClient{c: c}
}

// Config wires session dependencies.
type Config struct {
	Store   store.Store
	Client  Client
	Prompts Prompter
	// Pacing is the delay between partial frames. Zero means the default.
	Pacing time.Duration
}

// Orchestrator runs streaming chat sessions over live connections.
type Orchestrator struct {
	store   store.Store
	client  Client
	prompts Prompter
	pacing  time.Duration
}

// New constructs a session orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Client == nil {
		return nil, errors.New("provider client required")
	}
	if cfg.Prompts == nil {
		return nil, errors.New("prompter required")
	}
	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = defaultPacing
	}
	return &Orchestrator{
		store:   cfg.Store,
		client:  cfg.Client,
		prompts: cfg.Prompts,
		pacing:  pacing,
	}, nil
}

type inboundFrame struct {
	Message string `json:"message"`
}

// Run drives one connection until the client disconnects. The metered user
// is the record's owner. Per-exchange failures are reported in-band and
// never terminate the session; only setup failures and transport errors do.
func (o *Orchestrator) Run(ctx context.Context, conn Conn, pdfID string) error {
	log := slog.With("component", "chat", "chat_pdf", pdfID)

	pdf, err := o.store.PDFByID(ctx, pdfID)
	if errors.Is(err, store.ErrNotFound) {
		_ = conn.WriteJSON(map[string]any{"detail": msgThreadNotFound, "stream": false})
		return nil
	}
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	systemPrompt := o.prompts.ChatPrompt(ctx)

	thread, err := o.openThread(ctx, pdf, systemPrompt)
	if err != nil {
		return fmt.Errorf("open thread: %w", err)
	}
	log.Info("session started", "thread", thread.ID)

	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			// Client went away, or sent something unreadable.
			log.Info("session closed", "reason", err)
			return nil
		}
		if err := o.exchange(ctx, conn, pdf, thread.ID, systemPrompt, in.Message); err != nil {
			log.Error("exchange failed", "err", err)
			// Empty non-final close signal; the session keeps going.
			_ = conn.WriteJSON(map[string]any{"stream": false})
		}
	}
}

// openThread creates a fresh upstream thread seeded with the system prompt
// and up to the last ten answered exchanges in chronological order.
func (o *Orchestrator) openThread(ctx context.Context, pdf domain.ChatPDF, systemPrompt string) (ai.Thread, error) {
	history, err := o.store.RecentAnsweredMessages(ctx, pdf.ID, historyLimit)
	if err != nil {
		return ai.Thread{}, err
	}
	messages := make([]ai.ThreadMessage, 0, 1+2*len(history))
	messages = append(messages, ai.ThreadMessage{Role: "user", Content: systemPrompt})
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages,
			ai.ThreadMessage{Role: "user", Content: history[i].Question},
			ai.ThreadMessage{Role: "assistant", Content: history[i].Answer},
		)
	}
	return o.client.CreateThread(ctx, messages, pdf.VectorStoreID)
}

// exchange processes one inbound message end to end: credit check, forward,
// stream, persist, deduct.
func (o *Orchestrator) exchange(ctx context.Context, conn Conn, pdf domain.ChatPDF, threadID, systemPrompt, question string) error {
	user, err := o.store.UserByID(ctx, pdf.UserID)
	if err != nil {
		return fmt.Errorf("refresh user: %w", err)
	}
	if user.TotalCredits <= creditFloor {
		return conn.WriteJSON(map[string]any{"detail": msgInsufficientCredits, "stream": false})
	}

	if err := o.client.CreateThreadMessage(ctx, threadID, "user", question); err != nil {
		return fmt.Errorf("forward question: %w", err)
	}
	record, err := o.store.InsertMessage(ctx, pdf.ID, pdf.UserID, question)
	if err != nil {
		return fmt.Errorf("persist question: %w", err)
	}

	stream, err := o.client.StreamRun(ctx, threadID, pdf.AssistantID, systemPrompt, 0)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	defer stream.Close()

	answer, err := o.relay(ctx, conn, stream, threadID, record.ID)
	if err != nil {
		return err
	}

	return o.settle(ctx, conn, stream, user, threadID, record.ID, answer)
}

// relay consumes the run stream, forwarding the accumulated answer-so-far as
// partial frames and persisting the final text before its final frame.
func (o *Orchestrator) relay(ctx context.Context, conn Conn, stream EventStream, threadID, messageID string) (string, error) {
	var accumulated strings.Builder
	var annotations []string
	var final string
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read stream: %w", err)
		}
		switch event.Type {
		case ai.EventMessageDelta:
			accumulated.WriteString(event.Text)
			annotations = append(annotations, event.Annotations...)
			partial := stripAnnotations(accumulated.String(), annotations)
			if err := conn.WriteJSON(map[string]any{"message": partial, "stream": true}); err != nil {
				return "", fmt.Errorf("send partial: %w", err)
			}
			time.Sleep(o.pacing)
		case ai.EventMessageCompleted:
			final = stripAnnotations(event.Text, event.Annotations)
			if err := o.client.CreateThreadMessage(ctx, threadID, "assistant", final); err != nil {
				return "", fmt.Errorf("append answer turn: %w", err)
			}
			if _, err := o.store.SetMessageAnswer(ctx, messageID, final); err != nil {
				return "", fmt.Errorf("persist answer: %w", err)
			}
			if err := conn.WriteJSON(map[string]any{"message": final, "stream": false}); err != nil {
				return "", fmt.Errorf("send final: %w", err)
			}
		}
	}
	return final, nil
}

// settle resolves the run's terminal status, records usage, and debits the
// balance without ever driving it negative.
func (o *Orchestrator) settle(ctx context.Context, conn Conn, stream EventStream, user domain.User, threadID, messageID, answer string) error {
	run, err := o.client.GetRun(ctx, threadID, stream.RunID())
	if err != nil {
		return fmt.Errorf("fetch run: %w", err)
	}
	if run.Status == ai.StatusFailed {
		detail := "run failed"
		switch {
		case run.LastError != nil && run.LastError.Code == ai.ErrorCodeRateLimit:
			detail = msgRateLimited
		case run.LastError != nil:
			detail = run.LastError.Message
		}
		return conn.WriteJSON(map[string]any{"detail": detail, "stream": false})
	}

	var usage int
	if run.Usage != nil {
		usage = run.Usage.TotalTokens
	}
	if _, err := o.store.SetMessageUsage(ctx, messageID, usage); err != nil {
		return fmt.Errorf("persist usage: %w", err)
	}
	if answer == "" {
		if err := conn.WriteJSON(map[string]any{"message": msgNoAnswer, "stream": false}); err != nil {
			return fmt.Errorf("send notice: %w", err)
		}
	}

	deduction := usage
	if deduction > user.TotalCredits {
		deduction = user.TotalCredits
	}
	if _, err := o.store.SetUserCredits(ctx, user.ID, user.TotalCredits-deduction); err != nil {
		return fmt.Errorf("deduct credits: %w", err)
	}
	return conn.WriteJSON(map[string]any{"token_usage": usage, "stream": false})
}

// stripAnnotations removes the exact citation substrings the provider
// injected into visible text.
func stripAnnotations(text string, annotations []string) string {
	for _, ann := range annotations {
		if ann != "" {
			text = strings.ReplaceAll(text, ann, "")
		}
	}
	return text
}
