package command_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/sqlite"
	"github.com/identra/identra/pkg/store"
)

const testInstance = "inst-1"

// strongPassword clears the entropy floor of the password validation.
const strongPassword = "corr3ct-Horse!battery#staple"

func newTestCommands(t *testing.T) (*command.Commands, *sqlite.EventStore) {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	if err != nil {
		t.Fatalf("failed to create event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	c := command.New(command.Config{
		EventStore:     es,
		PasswordHasher: crypto.NewBcryptHasher(crypto.WithCost(4)),
	})
	return c, es
}

func allEvents(t *testing.T, es *sqlite.EventStore, instanceID string) []*domain.Event {
	t.Helper()
	events, err := es.Filter(context.Background(),
		store.NewSearchQueryBuilder().InstanceID(instanceID))
	if err != nil {
		t.Fatalf("failed to filter events: %v", err)
	}
	return events
}

func eventTypes(events []*domain.Event) []domain.EventType {
	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func mustAddOrg(t *testing.T, c *command.Commands, name string) string {
	t.Helper()
	created, err := c.AddOrg(context.Background(), testInstance, &command.AddOrgRequest{Name: name})
	if err != nil {
		t.Fatalf("failed to add org: %v", err)
	}
	return created.OrgID
}

func mustAddHuman(t *testing.T, c *command.Commands, orgID, username string) string {
	t.Helper()
	created, err := c.AddHumanUser(context.Background(), testInstance, orgID, &command.AddHumanRequest{
		Username:      username,
		FirstName:     "Test",
		LastName:      "User",
		Email:         username + "@example.com",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
	return created.UserID
}
