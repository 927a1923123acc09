package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"`
	IsTeacher    bool     `json:"is_teacher,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// TokenIssuer signs and refreshes the JWTs of the API.
type TokenIssuer struct {
	appName        string
	signingKey     []byte
	expiration     time.Duration
	refreshTimeout time.Duration
}

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		appName:        conf.AppName,
		signingKey:     []byte(conf.SecretKey),
		expiration:     conf.Server.JWTExpirationDelta,
		refreshTimeout: conf.Server.JWTRefreshExpirationDelta,
	}
}

// middleware returns the JWT auth middleware. Valid tokens are stored in the context under contextTokenKey.
func (ti *TokenIssuer) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    ti.signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	})
}

// Claims returns the claims of usr. origIat is carried over on refresh.
func (ti *TokenIssuer) Claims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.appName,
			Subject:   usr.ID,
			Audience:  "Dojo",
			ExpiresAt: now.Add(ti.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// Token generates a signed JWT token string representing the claims.
func (ti *TokenIssuer) Token(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (ti *TokenIssuer) authenticate(ctx context.Context, uname, pwd string, svc *user.Service) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	if usr, err = svc.SetLastLogin(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return ti.Claims(usr), nil
}

func (ti *TokenIssuer) refresh(ctx echo.Context, svc *user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return "", err
	}
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(ti.refreshTimeout)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return ti.Token(ti.Claims(usr, claims.OrigIssuedAt))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser loads the authenticated User once per request.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
