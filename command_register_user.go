package identity

import (
	"context"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/permissions"
	"github.com/goliatone/hashid/pkg/hashid"
)

const commandTimeout = 10 * time.Second

type RegisterUserMessage struct {
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	Mobile      string          `json:"mobile"`
	Password    string          `json:"password"`
	Permissions permissions.Map `json:"permissions,omitempty"`
	UseHashid   bool            `json:"-"`
	OnResponse  func(user *User) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// HashidSeed is the input hashed into a user id when UseHashid is set. The
// registration time keeps ids unique across re-registrations of an email.
func HashidSeed(email string, registeredAt time.Time) string {
	return email + "#" + strconv.FormatInt(registeredAt.UnixNano(), 10)
}

// RegisterUserHandler creates an identity. Email and mobile start as pending
// values until proven with a PIN or a login token.
type RegisterUserHandler struct {
	engine *Engine
}

func NewRegisterUserHandler(engine *Engine) *RegisterUserHandler {
	return &RegisterUserHandler{engine: engine}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Username = NormalizeUsername(getUsername(event.Username, event.Email))
	event.Email = NormalizeEmail(event.Email)
	event.Mobile = NormalizeMobile(event.Mobile)

	if err := h.validate(event); err != nil {
		return err
	}

	if err := h.checkContacts(ctx, event); err != nil {
		return err
	}

	user := &User{
		Username:        event.Username,
		RequestedEmail:  event.Email,
		RequestedMobile: event.Mobile,
		Permissions:     event.Permissions.Clone(),
	}

	if event.UseHashid && event.Email != "" {
		if id, err := hashid.NewUUID(HashidSeed(event.Email, h.engine.now())); err == nil {
			user.ID = id
		}
	}

	if event.Password != "" {
		hash, err := h.engine.hasher.Hash(event.Password)
		if err != nil {
			return h.engine.fail("register user hash failed", err)
		}
		user.PasswordHash = hash
	}

	created, err := h.engine.store.Create(ctx, user)
	if err != nil {
		return h.engine.fail("register user create failed", err, "username", event.Username)
	}

	h.engine.emit(ctx, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     actorFromUser(created),
		UserID:    created.ID.String(),
		ToState:   StateAnonymous,
	})

	if event.OnResponse != nil {
		event.OnResponse(created)
	}

	return nil
}

func (h *RegisterUserHandler) validate(event RegisterUserMessage) error {
	var identifierRules []validation.Rule
	if event.Username == "" && event.Email == "" && event.Mobile == "" {
		identifierRules = append(identifierRules, validation.Required.Error(MessageRequired))
	}

	return validationError(validation.ValidateStruct(&event,
		validation.Field(&event.Username, identifierRules...),
		validation.Field(&event.Email, is.Email.Error(MessageInvalidEmail)),
		validation.Field(&event.Mobile, validation.Length(7, 15).Error(MessageInvalidMobile)),
		validation.Field(&event.Password, validation.Length(h.engine.config.PasswordMinLength, 0).Error(MessageTooShort)),
	))
}

// checkContacts rejects contact values another identity already holds,
// confirmed or pending.
func (h *RegisterUserHandler) checkContacts(ctx context.Context, event RegisterUserMessage) error {
	fields := FieldErrors{}

	if event.Username != "" {
		if taken, err := exists(h.engine.store.FetchByUsername(ctx, event.Username)); err != nil {
			return h.engine.fail("register user username lookup failed", err)
		} else if taken {
			fields.Add("username", MessageUsernameTaken)
		}
	}

	if event.Email != "" {
		if taken, err := exists(h.engine.store.FetchByEmail(ctx, event.Email)); err != nil {
			return h.engine.fail("register user email lookup failed", err)
		} else if taken {
			fields.Add("email", MessageEmailTaken)
		}
	}

	if event.Mobile != "" {
		if taken, err := exists(h.engine.store.FetchByMobile(ctx, event.Mobile)); err != nil {
			return h.engine.fail("register user mobile lookup failed", err)
		} else if taken {
			fields.Add("mobile", MessageMobileTaken)
		}
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

func exists(user *User, err error) (bool, error) {
	if err != nil {
		if goerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return user != nil, nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
