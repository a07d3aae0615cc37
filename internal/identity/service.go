package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/cache"
	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/pb"
)

// Service implements pb.IdentityServiceServer.
type Service struct {
	pb.UnimplementedIdentityServiceServer

	repo     Repository
	codec    *auth.Codec
	resolver *auth.Resolver
	vcache   *cache.ValidationCache
	clk      clock.Clock
	tokenTTL time.Duration
	log      *slog.Logger
}

func NewService(repo Repository, codec *auth.Codec, resolver *auth.Resolver, vcache *cache.ValidationCache, clk clock.Clock, tokenTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		codec:    codec,
		resolver: resolver,
		vcache:   vcache,
		clk:      clk,
		tokenTTL: tokenTTL,
		log:      log,
	}
}

// ValidForOrder is the authoritative lookup behind the validation cache.
func (s *Service) ValidForOrder(ctx context.Context, userID string) (bool, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errs.Is(err, errs.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsValidForOrder(), nil
}

func (s *Service) CreateUser(ctx context.Context, req *pb.CreateUserRequest) (*pb.UserResponse, error) {
	if req.Username == "" {
		return nil, errs.New(errs.KindInvalidInput, "username is required")
	}
	if !validEmail(req.Email) {
		return nil, errs.New(errs.KindInvalidInput, "email address is not valid")
	}
	if !validPassword(req.Password) {
		return nil, errs.Newf(errs.KindInvalidInput, "password must be at least %d characters", minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "could not hash password", err)
	}
	u := &User{
		ID:              uuid.NewString(),
		Username:        req.Username,
		Email:           req.Email,
		PasswordHash:    string(hash),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Roles:           []string{"ROLE_USER"},
		IsActive:        true,
		IsEmailVerified: false,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	// Warm entry so the first orders skip the directory round trip.
	s.vcache.WarmCreate(ctx, u.ID, u.IsValidForOrder())
	s.log.Info("user created",
		"user_id", u.ID,
		"correlation_id", auth.CorrelationIDFrom(ctx),
	)
	return s.toResponse(u, "user created"), nil
}

func (s *Service) GetUser(ctx context.Context, req *pb.GetUserRequest) (*pb.UserResponse, error) {
	if req.UserId == "" {
		return nil, errs.New(errs.KindInvalidInput, "user_id is required")
	}
	u, err := s.repo.GetByID(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return s.toResponse(u, ""), nil
}

func (s *Service) UpdateUserProfile(ctx context.Context, req *pb.UpdateUserProfileRequest) (*pb.UserResponse, error) {
	if req.UserId == "" {
		return nil, errs.New(errs.KindInvalidInput, "user_id is required")
	}
	u, err := s.repo.GetByID(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	if req.FirstName != "" {
		u.FirstName = req.FirstName
	}
	if req.LastName != "" {
		u.LastName = req.LastName
	}
	if req.Phone != "" {
		u.Phone = req.Phone
	}
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}

	s.vcache.Invalidate(ctx, u.ID)
	s.resolver.Invalidate(u.Username)
	return s.toResponse(u, "profile updated"), nil
}

func (s *Service) ValidateUser(ctx context.Context, req *pb.ValidateUserRequest) (*pb.ValidateUserResponse, error) {
	if req.UserId == "" {
		return nil, errs.New(errs.KindInvalidInput, "user_id is required")
	}
	valid, err := s.vcache.IsValidForOrder(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	resp := &pb.ValidateUserResponse{Valid: valid, UserId: req.UserId}
	if !valid {
		resp.Message = "user is not eligible for orders"
	}
	return resp, nil
}

// AuthenticateUser checks credentials and mints a token. Failed attempts are
// counted; the account locks for a window once the limit is reached. Unknown
// username and wrong password are indistinguishable to the caller.
func (s *Service) AuthenticateUser(ctx context.Context, req *pb.AuthenticateUserRequest) (*pb.AuthenticateUserResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errs.New(errs.KindInvalidInput, "username and password are required")
	}
	u, err := s.repo.GetByUsername(ctx, req.Username)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindUnknownSubject, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if u.IsLocked(now) {
		return nil, errs.New(errs.KindAccountDisabled, "account locked")
	}
	if !u.IsActive {
		return nil, errs.New(errs.KindAccountDisabled, "account disabled")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= maxFailedLogins {
			until := now.Add(lockoutWindow)
			u.LockedUntil = &until
		}
		// Best effort; a lost counter update must not mask the auth failure.
		if saveErr := s.repo.Save(ctx, u); saveErr != nil {
			s.log.Warn("failed-login counter update lost", "user_id", u.ID, "error", saveErr)
		}
		s.vcache.Invalidate(ctx, u.ID)
		return nil, errs.New(errs.KindUnknownSubject, "invalid credentials")
	}

	if u.FailedLoginAttempts > 0 || u.LockedUntil != nil {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		if saveErr := s.repo.Save(ctx, u); saveErr != nil {
			s.log.Warn("failed-login counter reset lost", "user_id", u.ID, "error", saveErr)
		}
		s.vcache.Invalidate(ctx, u.ID)
	}

	principal := auth.Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Authorities: append([]string(nil), u.Roles...),
		Status:      auth.AccountActive,
	}
	token, err := s.codec.Issue(principal, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &pb.AuthenticateUserResponse{
		Token:     token,
		UserId:    u.ID,
		ExpiresAt: timestamppb.New(now.Add(s.tokenTTL)),
	}, nil
}

func (s *Service) HealthCheck(ctx context.Context, _ *pb.HealthCheckRequest) (*pb.HealthCheckResponse, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return &pb.HealthCheckResponse{Status: "NOT_SERVING", Message: "storage unreachable"}, nil
	}
	return &pb.HealthCheckResponse{Status: "SERVING"}, nil
}

func (s *Service) toResponse(u *User, msg string) *pb.UserResponse {
	return &pb.UserResponse{
		UserId:          u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Phone:           u.Phone,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       timestamppb.New(u.CreatedAt),
		Message:         msg,
	}
}
