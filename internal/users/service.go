package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSetupKey    = errors.New("invalid setup key")
	ErrSelfDelete         = errors.New("cannot delete own account")
	ErrSelfDemote         = errors.New("cannot change own role")
	ErrEmptyUpdate        = errors.New("nothing to update")
)

type Service struct {
	repo     Repository
	cache    cache.Cache
	cacheTTL time.Duration
	setupKey string
	location *time.Location
	now      func() time.Time
}

func NewService(repo Repository, c cache.Cache, cacheTTL time.Duration, setupKey string, location *time.Location) *Service {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Service{
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
		setupKey: setupKey,
		location: location,
		now:      time.Now,
	}
}

// Signup registers a salesperson, or an admin when the request carries the
// configured setup key.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (User, error) {
	role := access.RoleSalesperson
	if req.SetupKey != "" {
		if s.setupKey == "" || subtle.ConstantTimeCompare([]byte(req.SetupKey), []byte(s.setupKey)) != 1 {
			return User{}, ErrInvalidSetupKey
		}
		role = access.RoleAdmin
	}
	return s.create(ctx, req.Name, req.Email, req.Password, req.Phone, role)
}

// Provision lets an admin create an account with any role.
func (s *Service) Provision(ctx context.Context, actor access.Identity, req CreateRequest) (User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return User{}, err
	}
	role, err := access.ParseRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if err != nil {
		return User{}, err
	}
	return s.create(ctx, req.Name, req.Email, req.Password, req.Phone, role)
}

// Bootstrap creates the user unless the email is already registered. It
// reports whether a new account was created.
func (s *Service) Bootstrap(ctx context.Context, req CreateRequest) (User, bool, error) {
	existing, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, false, err
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		return User{}, false, err
	}
	user, err := s.create(ctx, req.Name, req.Email, req.Password, req.Phone, role)
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (s *Service) create(ctx context.Context, name, email, password, phone string, role access.Role) (User, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return User{}, err
	}
	email = normalizeEmail(email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	now := s.now().In(s.location)
	user := User{
		ID:           primitive.NewObjectID().Hex(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Role:         role,
		Phone:        strings.TrimSpace(phone),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate checks an email/password pair. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Resolve maps a token subject to the caller's current identity. The user
// record is cached; every mutation below drops the cached copy.
func (s *Service) Resolve(ctx context.Context, userID string) (access.Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return access.Identity{}, access.ErrUnauthenticated
	}

	var identity access.Identity
	if ok, _ := cache.GetJSON(ctx, s.cache, cacheKey(userID), &identity); ok {
		return identity, nil
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return access.Identity{}, access.ErrUnauthenticated
		}
		return access.Identity{}, err
	}
	identity = user.Identity()
	_ = cache.SetJSON(ctx, s.cache, cacheKey(userID), identity, s.cacheTTL)
	return identity, nil
}

func (s *Service) Get(ctx context.Context, actor access.Identity, id string) (User, error) {
	id = strings.TrimSpace(id)
	if err := access.RequireOwner(actor, id); err != nil {
		return User{}, err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (s *Service) List(ctx context.Context, actor access.Identity, role string, limit, offset int64) ([]User, int64, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, 0, err
	}
	var filter access.Role
	if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
		parsed, err := access.ParseRole(role)
		if err != nil {
			return nil, 0, err
		}
		filter = parsed
	}

	items, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListSalespeople returns every salesperson; any authenticated user may use
// it to pick a transfer target.
func (s *Service) ListSalespeople(ctx context.Context, actor access.Identity) ([]User, error) {
	if err := access.Authorize(&actor); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, access.RoleSalesperson, 0, 0)
}

func (s *Service) UpdateRole(ctx context.Context, actor access.Identity, id, role string) (User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return User{}, err
	}
	parsed, err := access.ParseRole(strings.ToLower(strings.TrimSpace(role)))
	if err != nil {
		return User{}, err
	}
	id = strings.TrimSpace(id)
	if id == actor.UserID && parsed != access.RoleAdmin {
		return User{}, ErrSelfDemote
	}
	return s.update(ctx, id, bson.M{"role": parsed})
}

func (s *Service) ResetPassword(ctx context.Context, actor access.Identity, id, password string) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.update(ctx, strings.TrimSpace(id), bson.M{"passwordHash": hash})
	return err
}

// UpdateProfile changes the caller's own name and phone.
func (s *Service) UpdateProfile(ctx context.Context, actor access.Identity, req ProfileUpdateRequest) (User, error) {
	if err := access.Authorize(&actor); err != nil {
		return User{}, err
	}
	set := bson.M{}
	if name := strings.TrimSpace(req.Name); name != "" {
		set["name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		set["phone"] = phone
	}
	if len(set) == 0 {
		return User{}, ErrEmptyUpdate
	}
	return s.update(ctx, actor.UserID, set)
}

// Delete removes an account. Only admins may delete and never themselves.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == actor.UserID {
		return ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) update(ctx context.Context, id string, set bson.M) (User, error) {
	updated, err := s.repo.Update(ctx, id, set, s.now().In(s.location))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	_ = s.cache.Delete(ctx, cacheKey(id))
}

func cacheKey(id string) string {
	return "user:" + id
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
