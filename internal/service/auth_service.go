package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"learnhub/internal/domain"
	"learnhub/internal/email"
	"learnhub/internal/repository"
)

// AuthConfig agrupa los parametros de AuthService que vienen de config.
type AuthConfig struct {
	BcryptCost      int
	UpstreamTimeout time.Duration
	LoginRedirect   string
}

// AuthService coordina registro, login, reset de password y verificacion.
// Las acciones devuelven un mensaje de exito o un *AuthError.
type AuthService struct {
	logger   *zap.Logger
	store    repository.Store
	tokens   *TokenService
	sender   email.Sender
	sessions SessionIssuer
	jwt      *JWTService
	limiter  IssueRateLimiter
	cfg      AuthConfig
}

func NewAuthService(
	logger *zap.Logger,
	store repository.Store,
	tokens *TokenService,
	sender email.Sender,
	sessions SessionIssuer,
	jwt *JWTService,
	limiter IssueRateLimiter,
	cfg AuthConfig,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = defaultUpstreamTimeout
	}
	if cfg.LoginRedirect == "" {
		cfg.LoginRedirect = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		logger:   logger,
		store:    store,
		tokens:   tokens,
		sender:   sender,
		sessions: sessions,
		jwt:      jwt,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// LoginResult es la salida de un paso del login: un mensaje, el pedido de
// codigo 2FA o la sesion establecida.
type LoginResult struct {
	Success   string
	TwoFactor bool
	Session   *Session
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return "", err
	}

	if _, err := s.store.Users().GetByEmail(ctx, in.Email); err == nil {
		return "", newAuthError(ErrConflict, MsgEmailInUse)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}

	var token domain.Token
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		now := time.Now().UTC()
		user := domain.User{
			ID:           uuid.NewString(),
			Email:        in.Email,
			DisplayName:  in.Name,
			PasswordHash: string(hash),
			Role:         domain.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return newAuthError(ErrConflict, MsgEmailInUse)
			}
			return err
		}
		token, err = s.tokens.issue(ctx, tx.Tokens(), domain.TokenVerification, in.Email)
		return err
	})
	if err != nil {
		return "", err
	}

	// La cuenta queda creada aunque falle el envio; login reenvia el token.
	if err := s.callUpstream(ctx, func(ctx context.Context) error {
		return s.sender.SendVerificationEmail(ctx, in.Email, token.Value)
	}); err != nil {
		s.logger.Warn("send verification email failed", zap.Error(err), zap.String("email", in.Email))
		return "", newAuthError(ErrUpstream, MsgSendFailed)
	}
	return MsgConfirmationSent, nil
}

// Login recorre usuario -> verificacion -> 2FA -> sesion.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	if err := validateInput(in); err != nil {
		return LoginResult{}, err
	}

	user, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, newAuthError(ErrNotFound, MsgUserNotFound)
		}
		return LoginResult{}, err
	}
	if !user.HasPassword() {
		return LoginResult{}, newAuthError(ErrNotFound, MsgUserNotFound)
	}

	if !user.IsVerified() {
		return s.resendVerification(ctx, user.Email)
	}

	if user.IsTwoFactorEnabled {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
			return LoginResult{}, newAuthError(ErrCredential, MsgInvalidCredentials)
		}
		if in.Code == "" {
			if err := s.sendTwoFactorCode(ctx, user.Email); err != nil {
				return LoginResult{}, err
			}
			return LoginResult{TwoFactor: true}, nil
		}
		if err := s.confirmTwoFactor(ctx, user, in.Code); err != nil {
			return LoginResult{}, err
		}
	}

	redirectTo := safeRedirect(in.RedirectTo, s.cfg.LoginRedirect)
	session, err := withTimeout(ctx, s.cfg.UpstreamTimeout, func(ctx context.Context) (Session, error) {
		return s.sessions.EstablishSession(ctx, Credentials{Email: in.Email, Password: in.Password}, redirectTo)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCredentialsSignin):
			return LoginResult{}, newAuthError(ErrCredential, MsgInvalidCredentials)
		case errors.Is(err, ErrAccessDenied):
			return LoginResult{}, newAuthError(ErrForbidden, MsgSomethingWentWrong)
		}
		s.logger.Error("establish session failed", zap.Error(err), zap.String("user_id", user.ID))
		return LoginResult{}, newAuthError(ErrUpstream, MsgSomethingWentWrong)
	}
	return LoginResult{Session: &session}, nil
}

// resendVerification emite un token de verificacion nuevo. Solo lo envia si
// no habia uno previo o si el previo ya vencio; con uno previo vigente el
// nuevo lo reemplaza pero no se manda.
func (s *AuthService) resendVerification(ctx context.Context, emailAddr string) (LoginResult, error) {
	prior, err := s.tokens.GetByEmail(ctx, domain.TokenVerification, emailAddr)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return LoginResult{}, err
	}
	send := !hadPrior || prior.Expired(s.tokens.now())
	if send {
		if err := s.allowIssue(ctx, domain.TokenVerification, emailAddr); err != nil {
			return LoginResult{}, err
		}
	}

	token, err := s.tokens.Issue(ctx, domain.TokenVerification, emailAddr)
	if err != nil {
		return LoginResult{}, err
	}
	if !send {
		return LoginResult{}, newAuthError(ErrForbidden, MsgEmailNotVerified)
	}

	if err := s.callUpstream(ctx, func(ctx context.Context) error {
		return s.sender.SendVerificationEmail(ctx, emailAddr, token.Value)
	}); err != nil {
		s.logger.Warn("resend verification email failed", zap.Error(err), zap.String("email", emailAddr))
		return LoginResult{}, newAuthError(ErrUpstream, MsgSomethingWentWrong)
	}
	if hadPrior {
		return LoginResult{Success: MsgNewVerificationSent}, nil
	}
	return LoginResult{Success: MsgConfirmationSent}, nil
}

func (s *AuthService) sendTwoFactorCode(ctx context.Context, emailAddr string) error {
	if err := s.allowIssue(ctx, domain.TokenTwoFactor, emailAddr); err != nil {
		return err
	}
	token, err := s.tokens.Issue(ctx, domain.TokenTwoFactor, emailAddr)
	if err != nil {
		return err
	}
	if err := s.callUpstream(ctx, func(ctx context.Context) error {
		return s.sender.SendTwoFactorEmail(ctx, emailAddr, token.Value)
	}); err != nil {
		s.logger.Warn("send two-factor email failed", zap.Error(err), zap.String("email", emailAddr))
		return newAuthError(ErrUpstream, MsgSomethingWentWrong)
	}
	return nil
}

// confirmTwoFactor consume el codigo y deja el marcador que exige el
// sign-in, en una sola transaccion.
func (s *AuthService) confirmTwoFactor(ctx context.Context, user domain.User, code string) error {
	token, err := s.tokens.CheckCode(ctx, user.Email, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return s.failedTwoFactorAttempt(ctx, user.Email)
		case errors.Is(err, ErrExpired):
			return newAuthError(ErrExpired, MsgCodeExpired)
		}
		return err
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tokens().Delete(ctx, domain.TokenTwoFactor, token.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newAuthError(ErrCredential, MsgInvalidCode)
			}
			return err
		}
		return tx.TwoFactorConfirmations().Replace(ctx, domain.TwoFactorConfirmation{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			CreatedAt: time.Now().UTC(),
		})
	})
}

// failedTwoFactorAttempt cuenta un codigo incorrecto. Al superar el limite
// el codigo vigente se descarta y hay que pedir uno nuevo.
func (s *AuthService) failedTwoFactorAttempt(ctx context.Context, emailAddr string) error {
	if s.limiter == nil || s.limiter.Allow(ctx, twoFactorCheckKey+emailAddr) {
		return newAuthError(ErrCredential, MsgInvalidCode)
	}
	s.logger.Warn("two-factor attempts exceeded", zap.String("email", emailAddr))
	token, err := s.store.Tokens().GetByEmail(ctx, domain.TokenTwoFactor, emailAddr)
	if err == nil {
		err = s.store.Tokens().Delete(ctx, domain.TokenTwoFactor, token.ID)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return newAuthError(ErrRateLimited, MsgTooManyRequests)
}

// RequestPasswordReset informa si el email no existe.
// TODO: responder igual en ambos casos para no revelar cuentas registradas.
func (s *AuthService) RequestPasswordReset(ctx context.Context, in ResetInput) (string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return "", err
	}
	if _, err := s.store.Users().GetByEmail(ctx, in.Email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", newAuthError(ErrNotFound, MsgEmailNotFound)
		}
		return "", err
	}
	if err := s.allowIssue(ctx, domain.TokenPasswordReset, in.Email); err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, domain.TokenPasswordReset, in.Email)
	if err != nil {
		return "", err
	}
	if err := s.callUpstream(ctx, func(ctx context.Context) error {
		return s.sender.SendPasswordResetEmail(ctx, in.Email, token.Value)
	}); err != nil {
		s.logger.Warn("send reset email failed", zap.Error(err), zap.String("email", in.Email))
		return "", newAuthError(ErrUpstream, MsgSendFailed)
	}
	return MsgResetSent, nil
}

// ApplyNewPassword cambia el password con un token de reset y revoca las
// sesiones abiertas del usuario.
func (s *AuthService) ApplyNewPassword(ctx context.Context, in NewPasswordInput) (string, error) {
	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" {
		return "", newAuthError(ErrValidation, MsgMissingToken)
	}
	if err := validateInput(in); err != nil {
		return "", err
	}

	token, err := s.tokens.Validate(ctx, domain.TokenPasswordReset, in.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return "", newAuthError(ErrNotFound, MsgInvalidToken)
		case errors.Is(err, ErrExpired):
			return "", newAuthError(ErrExpired, MsgTokenExpired)
		}
		return "", err
	}

	user, err := s.store.Users().GetByEmail(ctx, token.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", newAuthError(ErrNotFound, MsgEmailNotFound)
		}
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().UpdatePassword(ctx, user.ID, string(hash)); err != nil {
			return err
		}
		if err := tx.Tokens().Delete(ctx, domain.TokenPasswordReset, token.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newAuthError(ErrNotFound, MsgInvalidToken)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.jwt != nil {
		if err := s.jwt.RevokeUser(ctx, user.ID); err != nil {
			s.logger.Warn("revoke sessions after reset failed", zap.Error(err), zap.String("user_id", user.ID))
		}
	}
	return MsgPasswordUpdated, nil
}

func (s *AuthService) ConfirmVerification(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", newAuthError(ErrValidation, MsgMissingToken)
	}

	token, err := s.tokens.Validate(ctx, domain.TokenVerification, value)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return "", newAuthError(ErrNotFound, MsgTokenNotFound)
		case errors.Is(err, ErrExpired):
			return "", newAuthError(ErrExpired, MsgTokenExpired)
		}
		return "", err
	}

	user, err := s.store.Users().GetByEmail(ctx, token.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", newAuthError(ErrNotFound, MsgEmailNotFound)
		}
		return "", err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().VerifyEmail(ctx, user.ID, time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Tokens().Delete(ctx, domain.TokenVerification, token.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newAuthError(ErrNotFound, MsgTokenNotFound)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return MsgEmailVerified, nil
}

// UpsertOAuthUser crea o vincula el usuario de una identidad externa. El
// vinculo marca el email como verificado.
func (s *AuthService) UpsertOAuthUser(ctx context.Context, in OAuthInput) (domain.User, error) {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.Subject = strings.TrimSpace(in.Subject)
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateInput(in); err != nil {
		return domain.User{}, err
	}

	user, err := s.store.Users().GetByAuth(ctx, in.Provider, in.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}
	if in.Email == "" {
		return domain.User{}, newAuthError(ErrValidation, MsgInvalidFields)
	}

	verifiedAt := time.Now().UTC()
	existing, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err == nil {
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Users().LinkOAuth(ctx, existing.ID, in.Provider, in.Subject); err != nil {
				return err
			}
			if existing.IsVerified() {
				return nil
			}
			return tx.Users().VerifyEmail(ctx, existing.ID, verifiedAt)
		})
		if err != nil {
			return domain.User{}, err
		}
		existing.AuthProvider = in.Provider
		existing.AuthSubject = in.Subject
		if !existing.IsVerified() {
			existing.EmailVerifiedAt = &verifiedAt
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	user = domain.User{
		ID:              uuid.NewString(),
		Email:           in.Email,
		DisplayName:     in.DisplayName,
		AuthProvider:    in.Provider,
		AuthSubject:     in.Subject,
		EmailVerifiedAt: &verifiedAt,
		Role:            domain.RoleUser,
		CreatedAt:       verifiedAt,
		UpdatedAt:       verifiedAt,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, newAuthError(ErrConflict, MsgEmailInUse)
		}
		return domain.User{}, err
	}
	return user, nil
}

// OAuthSignIn hace el upsert y emite la sesion sin pasar por password.
func (s *AuthService) OAuthSignIn(ctx context.Context, in OAuthInput) (Session, error) {
	user, err := s.UpsertOAuthUser(ctx, in)
	if err != nil {
		return Session{}, err
	}
	if s.jwt == nil {
		return Session{}, errors.New("jwt not configured")
	}
	pair, err := s.jwt.GeneratePair(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: pair, RedirectTo: s.cfg.LoginRedirect}, nil
}

// RefreshSession rota el refresh token y emite un par nuevo con el usuario
// tal como esta en el store. Un usuario borrado pierde todas sus sesiones.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, error) {
	if s.jwt == nil {
		return TokenPair{}, errors.New("jwt not configured")
	}
	claims, err := s.jwt.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.store.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.jwt.RevokeUser(ctx, claims.UserID); err != nil {
				s.logger.Warn("revoke sessions of deleted user failed", zap.Error(err), zap.String("user_id", claims.UserID))
			}
			return TokenPair{}, ErrJWTInvalid
		}
		return TokenPair{}, err
	}
	return s.jwt.GeneratePair(ctx, user)
}

func (s *AuthService) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, newAuthError(ErrNotFound, MsgUserNotFound)
		}
		return domain.User{}, err
	}
	return user, nil
}

// SetTwoFactor activa o desactiva 2FA. Las cuentas sin password no pueden
// usarlo porque el codigo se pide despues del password.
func (s *AuthService) SetTwoFactor(ctx context.Context, userID string, enabled bool) (domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !user.HasPassword() {
		return domain.User{}, newAuthError(ErrForbidden, MsgTwoFactorUnavailable)
	}
	if err := s.store.Users().SetTwoFactor(ctx, user.ID, enabled); err != nil {
		return domain.User{}, err
	}
	user.IsTwoFactorEnabled = enabled
	return user, nil
}

const twoFactorCheckKey = "two_factor_check:"

func (s *AuthService) allowIssue(ctx context.Context, kind domain.TokenKind, emailAddr string) error {
	if s.limiter == nil {
		return nil
	}
	if !s.limiter.Allow(ctx, string(kind)+":"+emailAddr) {
		return newAuthError(ErrRateLimited, MsgTooManyRequests)
	}
	return nil
}

func (s *AuthService) callUpstream(ctx context.Context, fn func(context.Context) error) error {
	if s.sender == nil {
		return errors.New("email sender not configured")
	}
	_, err := withTimeout(ctx, s.cfg.UpstreamTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
