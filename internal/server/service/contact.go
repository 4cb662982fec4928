package service

import (
	"context"
	"log/slog"
	"time"

	"cloudprime/internal/server/database"

	"github.com/google/uuid"
)

// ContactInput is a public contact-form submission.
type ContactInput struct {
	Name      string
	Email     string
	Subject   string
	Message   string
	IPAddress string
	UserAgent string
}

// ContactService accepts contact-form messages.
type ContactService struct {
	contacts ContactStore
	now      func() time.Time
}

func NewContactService(contacts ContactStore) *ContactService {
	return &ContactService{contacts: contacts, now: func() time.Time { return time.Now().UTC() }}
}

// Submit validates and stores a message with status "new".
func (s *ContactService) Submit(ctx context.Context, in ContactInput) (*database.Contact, error) {
	name, err := requireText("name", in.Name, 100)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	subject, err := requireText("subject", in.Subject, 200)
	if err != nil {
		return nil, err
	}
	message, err := requireText("message", in.Message, 2000)
	if err != nil {
		return nil, err
	}

	c := &database.Contact{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Subject:   subject,
		Message:   message,
		Status:    database.ContactNew,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		CreatedAt: s.now(),
	}
	if err := s.contacts.Create(ctx, c); err != nil {
		return nil, err
	}

	slog.Info("contact message received", "id", c.ID, "email", c.Email)
	return c, nil
}
