package command

import (
	"context"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/id"
	"github.com/identra/identra/pkg/instance"
	"github.com/identra/identra/pkg/logging"
	"github.com/identra/identra/pkg/notification"
	"github.com/identra/identra/pkg/store"
)

// Commands is the explicit dependency context for all command handlers.
// One instance is shared by all requests; it holds no per-request state.
type Commands struct {
	eventstore      store.EventStore
	idGenerator     id.Generator
	permissionCheck authz.Checker
	passwordHasher  crypto.Hasher
	domainValidator DomainValidator
	notifier        notification.Sender
	clock           domain.Clock
	logger          logging.Logger

	// defaultDomain is appended as the generated org domain on org
	// creation (e.g. "localhost" in development).
	defaultDomain string
}

// Config wires the collaborators of the command pipeline. Zero fields fall
// back to safe defaults where one exists.
type Config struct {
	EventStore      store.EventStore
	IDGenerator     id.Generator
	PermissionCheck authz.Checker
	PasswordHasher  crypto.Hasher
	DomainValidator DomainValidator
	Notifier        notification.Sender
	Clock           domain.Clock
	Logger          logging.Logger
	DefaultDomain   string
}

func New(config Config) *Commands {
	c := &Commands{
		eventstore:      config.EventStore,
		idGenerator:     config.IDGenerator,
		permissionCheck: config.PermissionCheck,
		passwordHasher:  config.PasswordHasher,
		domainValidator: config.DomainValidator,
		notifier:        config.Notifier,
		clock:           config.Clock,
		logger:          config.Logger,
		defaultDomain:   config.DefaultDomain,
	}
	if c.idGenerator == nil {
		c.idGenerator = id.NewSortableGenerator()
	}
	if c.permissionCheck == nil {
		c.permissionCheck = authz.AllowAll()
	}
	if c.passwordHasher == nil {
		c.passwordHasher = crypto.NewBcryptHasher()
	}
	if c.domainValidator == nil {
		c.domainValidator = DNSDomainValidator{}
	}
	if c.clock == nil {
		c.clock = domain.SystemClock()
	}
	if c.logger == nil {
		c.logger = logging.NewNoopLogger()
	}
	if c.notifier == nil {
		c.notifier = &notification.LogSender{Logger: c.logger}
	}
	if c.defaultDomain == "" {
		c.defaultDomain = "localhost"
	}
	return c
}

// pushAppendAndReduce pushes the commands, appends the returned events to
// the write model and reduces it, so the caller's summary reflects the new
// sequence.
func (c *Commands) pushAppendAndReduce(ctx context.Context, model reducer, commands ...*domain.Command) error {
	events, err := c.eventstore.Push(ctx, commands...)
	if err != nil {
		return err
	}
	model.AppendEvents(events...)
	return model.Reduce()
}

// pushWithConcurrencyCheck is pushAppendAndReduce with the first command's
// aggregate pinned to expectedVersion. Used by commands whose validity
// depends on the loaded state, so a concurrent writer surfaces as a
// conflict instead of silently interleaving.
func (c *Commands) pushWithConcurrencyCheck(ctx context.Context, model reducer, expectedVersion uint64, commands ...*domain.Command) error {
	events, err := c.eventstore.PushWithConcurrencyCheck(ctx, expectedVersion, commands...)
	if err != nil {
		return err
	}
	model.AppendEvents(events...)
	return model.Reduce()
}

type reducer interface {
	AppendEvents(events ...*domain.Event)
	Reduce() error
}

// checkPermission runs the external authorization check and normalizes the
// failure into the stable taxonomy.
func (c *Commands) checkPermission(ctx context.Context, resource, action, scope string) error {
	if err := c.permissionCheck.Check(ctx, resource, action, scope); err != nil {
		if errs.IsPermissionDenied(err) {
			return err
		}
		return errs.ThrowPermissionDenied(err, "COMMAND-Perm01", "permission denied")
	}
	return nil
}

// nextID returns the caller-provided ID or generates a fresh one.
func (c *Commands) nextID(given string) (string, error) {
	if given != "" {
		return given, nil
	}
	generated, err := c.idGenerator.Next()
	if err != nil {
		return "", errs.ThrowInternal(err, "COMMAND-IDGen01", "failed to generate id")
	}
	return generated, nil
}

// creator resolves the acting user from the context.
func creator(ctx context.Context) string {
	return instance.UserID(ctx)
}
