package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"Lifeline/internal/models"
	"Lifeline/pkg/constant"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/notification"
)

const (
	otpValidity   = 5 * time.Minute
	tokenValidity = 10 * 24 * time.Hour
	resetValidity = 30 * time.Minute
)

// AuthService is the identity and session gate. Login is a two-step
// challenge: credentials buy an emailed passcode, the passcode buys a
// session token verified statelessly on every later call.
type AuthService struct {
	db      *gorm.DB
	mailer  *notification.Mailer
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewAuthService(db *gorm.DB, mailer *notification.Mailer, secret []byte, baseURL string) *AuthService {
	return &AuthService{
		db:      db,
		mailer:  mailer,
		secret:  secret,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Login verifies credentials and emails a passcode. Responder accounts
// must be verified and approved before they may log in at all.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NotFound("user")
		}
		return errors.Wrap(err, "find user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return errors.InvalidCredentials()
	}

	if user.Role == constant.RoleResponder && (!user.IsVerified || !user.IsApproved) {
		return errors.PendingApproval("volunteer account is pending admin verification")
	}

	code, err := generateOTP()
	if err != nil {
		return errors.Wrap(err, "generate otp")
	}
	expires := s.now().Add(otpValidity)
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"otp_code":       code,
		"otp_expires_at": expires,
	}).Error; err != nil {
		return errors.Wrap(err, "store otp")
	}

	// The mailer swallows channel failures; a relay outage must not turn
	// into a login error.
	s.mailer.SendOTP(ctx, user.Email, code)
	return nil
}

// VerifyOTP exchanges a valid passcode for a session token and clears the
// challenge.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (string, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil, errors.NotFound("user")
		}
		return "", nil, errors.Wrap(err, "find user")
	}

	if user.OTPCode == nil || *user.OTPCode != code ||
		user.OTPExpiresAt == nil || s.now().After(*user.OTPExpiresAt) {
		return "", nil, errors.InvalidOrExpiredCode()
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"otp_code":       nil,
		"otp_expires_at": nil,
	}).Error; err != nil {
		return "", nil, errors.Wrap(err, "clear otp")
	}

	token, err := s.signToken(jwt.MapClaims{
		"userId": user.ID,
		"role":   user.Role,
		"iat":    s.now().Unix(),
		"exp":    s.now().Add(tokenValidity).Unix(),
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "sign token")
	}
	return token, &user, nil
}

// ForgotPassword emails a short-lived signed reset link. The token is
// stateless; nothing is stored.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NotFound("user")
		}
		return errors.Wrap(err, "find user")
	}

	token, err := s.signToken(jwt.MapClaims{
		"userId":  user.ID,
		"purpose": "password_reset",
		"iat":     s.now().Unix(),
		"exp":     s.now().Add(resetValidity).Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "sign reset token")
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	s.mailer.SendResetLink(ctx, user.Email, link)
	return nil
}

// ResetPassword verifies a reset token and stores the new hash.
func (s *AuthService) ResetPassword(ctx context.Context, tokenStr, newPassword string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return errors.InvalidOrExpiredCode()
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != "password_reset" {
		return errors.InvalidOrExpiredCode()
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return errors.InvalidOrExpiredCode()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", string(hash))
	if res.Error != nil {
		return errors.Wrap(res.Error, "update password")
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("user")
	}
	return nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// HashPassword produces a bcrypt hash for account provisioning.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
