package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"group-chat/internal/domain"
)

type mockMessageRepo struct {
	appended  []domain.Message
	appendErr error
	listData  []domain.Message
	listErr   error
	lastID    int64
	lastLimit int
}

func (m *mockMessageRepo) Append(_ context.Context, sender domain.User, body string) (domain.Message, error) {
	if m.appendErr != nil {
		return domain.Message{}, m.appendErr
	}
	msg := domain.Message{
		ID:         int64(len(m.appended) + 1),
		SenderID:   sender.ID,
		SenderName: sender.Name(),
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	m.appended = append(m.appended, msg)
	return msg, nil
}

func (m *mockMessageRepo) ListAfter(_ context.Context, lastID int64, limit int) ([]domain.Message, error) {
	m.lastID = lastID
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listData, nil
}

var testSender = domain.User{ID: "u1", Username: "alice"}

func TestMessageServiceAppend_TrimsAndPersists(t *testing.T) {
	repo := &mockMessageRepo{}
	svc := NewMessageService(repo)

	msg, err := svc.Append(context.Background(), testSender, "  hola  ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.ID != 1 || msg.Body != "hola" || msg.SenderName != "alice" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected one append, got %d", len(repo.appended))
	}
}

func TestMessageServiceAppend_Validation(t *testing.T) {
	repo := &mockMessageRepo{}
	svc := NewMessageService(repo)

	cases := []struct {
		name   string
		sender domain.User
		body   string
	}{
		{"empty body", testSender, ""},
		{"whitespace body", testSender, "   \n\t"},
		{"too long", testSender, strings.Repeat("a", domain.MaxMessageLength+1)},
		{"missing sender", domain.User{Username: "ghost"}, "hola"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), c.sender, c.body)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if len(repo.appended) != 0 {
		t.Fatalf("expected no appends on validation failure, got %d", len(repo.appended))
	}
}

func TestMessageServiceAppend_LengthCountsCharacters(t *testing.T) {
	repo := &mockMessageRepo{}
	svc := NewMessageService(repo)

	body := strings.Repeat("ñ", domain.MaxMessageLength)
	if _, err := svc.Append(context.Background(), testSender, body); err != nil {
		t.Fatalf("expected %d multibyte characters to be accepted, got %v", domain.MaxMessageLength, err)
	}
}

func TestMessageServiceAppend_StorageError(t *testing.T) {
	repo := &mockMessageRepo{appendErr: errors.New("connection refused")}
	svc := NewMessageService(repo)

	_, err := svc.Append(context.Background(), testSender, "hola")
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestMessageServiceListAfter_NormalizesArguments(t *testing.T) {
	repo := &mockMessageRepo{listData: []domain.Message{{ID: 1}}}
	svc := NewMessageService(repo)

	cases := []struct {
		lastID    int64
		limit     int
		wantID    int64
		wantLimit int
	}{
		{0, 50, 0, 50},
		{-3, 10, 0, 10},
		{7, 0, 7, domain.DefaultPageSize},
		{7, 500, 7, domain.DefaultPageSize},
	}
	for _, c := range cases {
		if _, err := svc.ListAfter(context.Background(), c.lastID, c.limit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.lastID != c.wantID || repo.lastLimit != c.wantLimit {
			t.Fatalf("ListAfter(%d, %d) reached repo with (%d, %d), want (%d, %d)",
				c.lastID, c.limit, repo.lastID, repo.lastLimit, c.wantID, c.wantLimit)
		}
	}
}

func TestMessageServiceListAfter_StorageError(t *testing.T) {
	svc := NewMessageService(&mockMessageRepo{listErr: errors.New("timeout")})

	if _, err := svc.ListAfter(context.Background(), 0, 50); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestMessageService_NotConfigured(t *testing.T) {
	var svc *MessageService
	if _, err := svc.Append(context.Background(), testSender, "hola"); !errors.Is(err, ErrMessageServiceNotConfigured) {
		t.Fatalf("expected ErrMessageServiceNotConfigured, got %v", err)
	}
}
