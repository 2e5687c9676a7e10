package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"docchat/internal/store"
	"docchat/pkg/ai"
	"docchat/pkg/auth"
	"docchat/pkg/domain"
	"docchat/pkg/storage"
)

const (
	assistantName   = "Propti Assistant"
	vectorStoreName = "rag-store"
	// SignupCredits is the starting token-credit grant for new accounts.
	SignupCredits = 1000
)

// AssistantService is the subset of the provider client ingestion needs.
type AssistantService interface {
	CreateAssistant(ctx context.Context, name, instructions, model string) (ai.Assistant, error)
	CreateVectorStore(ctx context.Context, name string) (ai.VectorStore, error)
	UploadAndPoll(ctx context.Context, vectorStoreID, filename string, r io.Reader) (ai.FileBatch, error)
	BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) (ai.Assistant, error)
}

// Config wires required dependencies for the application core.
type Config struct {
	Store        store.Store
	Assistants   AssistantService
	Objects      storage.ObjectStore
	Tokens       *auth.TokenIssuer
	Model        string
	Instructions string
}

// App implements identity, document ingestion, and listing operations.
type App struct {
	store        store.Store
	assistants   AssistantService
	objects      storage.ObjectStore
	tokens       *auth.TokenIssuer
	model        string
	instructions string
}

// New validates the configuration and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Assistants == nil {
		return nil, errors.New("assistant client required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model required")
	}
	return &App{
		store:        cfg.Store,
		assistants:   cfg.Assistants,
		objects:      cfg.Objects,
		tokens:       cfg.Tokens,
		model:        cfg.Model,
		instructions: cfg.Instructions,
	}, nil
}

// Signup creates a new account with the starting credit grant.
func (a *App) Signup(ctx context.Context, username, email, password string) (domain.User, error) {
	exists, err := a.store.UserExists(ctx, username, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return domain.User{}, ErrDuplicateUser
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.store.CreateUser(ctx, username, email, hash, SignupCredits)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login authenticates credentials and issues an access token.
func (a *App) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Authenticate verifies an access token and resolves its user.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.store.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// UploadPDF ingests a document: stores the bytes durably, provisions an
// assistant and a vector store upstream, indexes the file into the store, and
// records the binding. The record is written with whatever terminal status
// upstream reported; a non-completed status still fails the call.
func (a *App) UploadPDF(ctx context.Context, user domain.User, filename, contentType string, r io.Reader) (domain.ChatPDF, error) {
	if contentType != "application/pdf" {
		return domain.ChatPDF{}, ErrNotPDF
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ChatPDF{}, fmt.Errorf("read upload: %w", err)
	}

	name := storedName(filename)
	storedPath, err := a.objects.Save(ctx, name, bytes.NewReader(data), int64(len(data)), "application/pdf")
	if err != nil {
		return domain.ChatPDF{}, fmt.Errorf("store upload: %w", err)
	}
	pages := pageCount(data)

	var assistant ai.Assistant
	var vectorStore ai.VectorStore
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		assistant, err = a.assistants.CreateAssistant(groupCtx, assistantName, a.instructions, a.model)
		return err
	})
	group.Go(func() error {
		var err error
		vectorStore, err = a.assistants.CreateVectorStore(groupCtx, vectorStoreName)
		return err
	})
	if err := group.Wait(); err != nil {
		return domain.ChatPDF{}, fmt.Errorf("provision upstream resources: %w", err)
	}

	batch, err := a.assistants.UploadAndPoll(ctx, vectorStore.ID, name, bytes.NewReader(data))
	if err != nil {
		return domain.ChatPDF{}, fmt.Errorf("index file: %w", err)
	}
	if _, err := a.assistants.BindVectorStore(ctx, assistant.ID, vectorStore.ID); err != nil {
		return domain.ChatPDF{}, fmt.Errorf("bind vector store: %w", err)
	}

	record, err := a.store.CreatePDF(ctx, domain.ChatPDF{
		UserID:        user.ID,
		File:          storedPath,
		Status:        domain.PDFStatus(batch.Status),
		AssistantID:   assistant.ID,
		VectorStoreID: vectorStore.ID,
		NumPages:      pages,
	})
	if err != nil {
		return domain.ChatPDF{}, fmt.Errorf("save record: %w", err)
	}
	if record.Status != domain.StatusCompleted {
		// The failed record stays written; it never surfaces in listings
		// because it accrues no messages.
		return record, ErrIngestionFailed
	}
	return record, nil
}

// ListPDFs returns the caller's live records that have at least one message.
func (a *App) ListPDFs(ctx context.Context, user domain.User) ([]store.Document, error) {
	docs, err := a.store.ListPDFsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return docs, nil
}

// ListAllPDFs is the admin listing with pagination and text search.
func (a *App) ListAllPDFs(ctx context.Context, page, pageLimit int, search string) ([]store.Document, int64, error) {
	docs, total, err := a.store.ListAllPDFs(ctx, page, pageLimit, search)
	if err != nil {
		return nil, 0, fmt.Errorf("list all records: %w", err)
	}
	return docs, total, nil
}

// DeletePDF soft-deletes a record; it stays in the database but disappears
// from all listings.
func (a *App) DeletePDF(ctx context.Context, id string) (store.Document, error) {
	return a.store.SoftDeletePDF(ctx, id)
}

// storedName builds a collision-resistant file name from the original.
func storedName(filename string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if base == "" || base == "." {
		base = "document"
	}
	return fmt.Sprintf("%s-%s.pdf", base, uuid.NewString())
}

// pageCount probes the PDF structure for its page count. Parse failures are
// not fatal; the upstream index decides whether the document is usable.
func pageCount(data []byte) (n int) {
	defer func() {
		// The parser panics on some malformed files.
		if r := recover(); r != nil {
			slog.Debug("probe pdf pages", "panic", r)
			n = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Debug("probe pdf pages", "err", err)
		return 0
	}
	return reader.NumPage()
}
