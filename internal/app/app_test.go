package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"docchat/internal/store"
	"docchat/pkg/ai"
	"docchat/pkg/auth"
	"docchat/pkg/domain"
)

type fakeStore struct {
	store.Store

	users   map[string]domain.User
	pdfs    []domain.ChatPDF
	nextID  int
	created int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]domain.User{}}
}

func (s *fakeStore) id() string {
	s.nextID++
	return fmt.Sprintf("%024x", s.nextID)
}

func (s *fakeStore) CreateUser(ctx context.Context, username, email, passwordHash string, credits int) (domain.User, error) {
	s.created++
	user := domain.User{
		ID:           s.id(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		TotalCredits: credits,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[username] = user
	return user, nil
}

func (s *fakeStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	user, ok := s.users[username]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) UserByID(ctx context.Context, id string) (domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (s *fakeStore) CreatePDF(ctx context.Context, pdf domain.ChatPDF) (domain.ChatPDF, error) {
	pdf.ID = s.id()
	s.pdfs = append(s.pdfs, pdf)
	return pdf, nil
}

type fakeAssistants struct {
	batchStatus string
	bound       bool
	uploads     int
}

func (f *fakeAssistants) CreateAssistant(ctx context.Context, name, instructions, model string) (ai.Assistant, error) {
	return ai.Assistant{ID: "asst_1"}, nil
}

func (f *fakeAssistants) CreateVectorStore(ctx context.Context, name string) (ai.VectorStore, error) {
	return ai.VectorStore{ID: "vs_1"}, nil
}

func (f *fakeAssistants) UploadAndPoll(ctx context.Context, vectorStoreID, filename string, r io.Reader) (ai.FileBatch, error) {
	f.uploads++
	status := f.batchStatus
	if status == "" {
		status = ai.StatusCompleted
	}
	return ai.FileBatch{ID: "batch_1", Status: status}, nil
}

func (f *fakeAssistants) BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) (ai.Assistant, error) {
	f.bound = true
	return ai.Assistant{ID: assistantID}, nil
}

type fakeObjects struct {
	saved int
}

func (f *fakeObjects) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	f.saved++
	return "static/" + name, nil
}

func (f *fakeObjects) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func newTestApp(t *testing.T, st store.Store, assistants AssistantService, objects *fakeObjects) *App {
	t.Helper()
	if objects == nil {
		objects = &fakeObjects{}
	}
	tokens, err := auth.NewTokenIssuer("test-secret", auth.DefaultTokenTTL)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	app, err := New(Config{
		Store:        st,
		Assistants:   assistants,
		Objects:      objects,
		Tokens:       tokens,
		Model:        "gpt-4o",
		Instructions: "answer from the document",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

func TestSignupAndLogin(t *testing.T) {
	st := newFakeStore()
	app := newTestApp(t, st, &fakeAssistants{}, nil)

	user, err := app.Signup(context.Background(), "alice", "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.TotalCredits != SignupCredits {
		t.Fatalf("credits = %d, want %d", user.TotalCredits, SignupCredits)
	}

	token, err := app.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	got, err := app.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authenticated id = %q, want %q", got.ID, user.ID)
	}
}

func TestSignupDuplicate(t *testing.T) {
	st := newFakeStore()
	app := newTestApp(t, st, &fakeAssistants{}, nil)

	if _, err := app.Signup(context.Background(), "alice", "alice@example.com", "secret"); err != nil {
		t.Fatalf("first Signup: %v", err)
	}
	_, err := app.Signup(context.Background(), "alice", "other@example.com", "secret")
	if !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("err = %v, want ErrDuplicateUser", err)
	}
	if st.created != 1 {
		t.Fatalf("created = %d, want 1", st.created)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	st := newFakeStore()
	app := newTestApp(t, st, &fakeAssistants{}, nil)

	if _, err := app.Signup(context.Background(), "alice", "alice@example.com", "secret"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	token, err := app.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}
	if _, err := app.Login(context.Background(), "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestUploadPDFRejectsNonPDF(t *testing.T) {
	st := newFakeStore()
	assistants := &fakeAssistants{}
	objects := &fakeObjects{}
	app := newTestApp(t, st, assistants, objects)

	user := domain.User{ID: "012345678901234567890123"}
	_, err := app.UploadPDF(context.Background(), user, "notes.txt", "text/plain", strings.NewReader("hi"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("err = %v, want ErrNotPDF", err)
	}
	if objects.saved != 0 || assistants.uploads != 0 || len(st.pdfs) != 0 {
		t.Fatal("rejected upload must not touch storage or upstream")
	}
}

func TestUploadPDFCompleted(t *testing.T) {
	st := newFakeStore()
	assistants := &fakeAssistants{}
	objects := &fakeObjects{}
	app := newTestApp(t, st, assistants, objects)

	user := domain.User{ID: "012345678901234567890123"}
	record, err := app.UploadPDF(context.Background(), user, "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadPDF: %v", err)
	}
	if record.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want %q", record.Status, domain.StatusCompleted)
	}
	if record.AssistantID != "asst_1" || record.VectorStoreID != "vs_1" {
		t.Fatalf("record bindings = %q/%q", record.AssistantID, record.VectorStoreID)
	}
	if !strings.HasPrefix(record.File, "static/report-") || !strings.HasSuffix(record.File, ".pdf") {
		t.Fatalf("file path = %q", record.File)
	}
	if !assistants.bound {
		t.Fatal("vector store not bound to assistant")
	}
}

func TestUploadPDFFailedBatch(t *testing.T) {
	st := newFakeStore()
	assistants := &fakeAssistants{batchStatus: ai.StatusFailed}
	app := newTestApp(t, st, assistants, &fakeObjects{})

	user := domain.User{ID: "012345678901234567890123"}
	record, err := app.UploadPDF(context.Background(), user, "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("err = %v, want ErrIngestionFailed", err)
	}
	if record.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want %q", record.Status, domain.StatusFailed)
	}
	// The record is still persisted for diagnosis.
	if len(st.pdfs) != 1 {
		t.Fatalf("persisted records = %d, want 1", len(st.pdfs))
	}
}
