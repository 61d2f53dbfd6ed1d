package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.CreateAccess != nil
}

func (s Service) SendOTP(ctx context.Context, phone string) OTPSendResult {
	return RunSendOTP(ctx, phone, s.deps.SendOTP)
}

func (s Service) VerifyOTP(ctx context.Context, phone, code string) OTPVerifyResult {
	return RunVerifyOTP(ctx, phone, code, s.deps.VerifyOTP)
}

func (s Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) IssueSession(ctx context.Context, user UserRecord) IssueResult {
	return RunIssueSession(ctx, user, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, userID string) error {
	return RunLogout(ctx, userID, s.deps.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, tokenStr string) LogoutByAccessResult {
	return RunLogoutByAccessToken(ctx, tokenStr, s.deps.Logout)
}
