package auth

import (
	"fmt"
	"reading-room/domain"
	"reading-room/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultIssuer = "reading-room"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string `json:"user_id" validate:"required,max=128"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"omitempty,oneof=ADMIN MODERATOR LISTENER admin moderator listener"`
	jwt.RegisteredClaims
}

// TokenValidator checks the tokens issued by the main application.
// Tokens are only read here, minting exists for local development and tests.
type TokenValidator struct {
	secret []byte
	issuer string
}

func NewTokenValidator(secret, issuer string) *TokenValidator {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// GenerateToken creates a signed JWT for a specific user.
func (v *TokenValidator) GenerateToken(userID, displayName string, role domain.Role,
	authTokenDuration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(authTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}

	// HS256 (HMAC with SHA256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Validate parses the token, checks signature, issuer and expiration,
// and returns the identity every event of the connection will carry.
func (v *TokenValidator) Validate(tokenString string) (domain.PublicParticipant, error) {
	if tokenString == "" {
		return domain.PublicParticipant{}, fmt.Errorf("%w: token is missing", errors.ErrAuth)
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.PublicParticipant{}, fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.PublicParticipant{}, fmt.Errorf("%w: %v", errors.ErrAuth, jwt.ErrSignatureInvalid)
	}
	return toParticipant(claims)
}

func toParticipant(claims *CustomClaims) (domain.PublicParticipant, error) {
	if err := ValidateClaims(claims); err != nil {
		return domain.PublicParticipant{}, fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}
	userID := domain.NormalizeIdentity(claims.UserID)
	if userID == "" {
		return domain.PublicParticipant{}, fmt.Errorf("%w: user id is blank", errors.ErrAuth)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.PublicParticipant{}, fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}
	displayName := claims.DisplayName
	if displayName == "" {
		displayName = claims.UserID
	}
	return domain.PublicParticipant{
		UserID:          userID,
		DisplayIdentity: displayName,
		Role:            role,
	}, nil
}

// PeekIdentity reads the identity of a token without checking it.
// Clients use it to know who they are; the server always calls Validate.
func PeekIdentity(tokenString string) (domain.PublicParticipant, error) {
	claims := &CustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return domain.PublicParticipant{}, fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}
	return toParticipant(claims)
}
