package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Operator is a workshop account allowed to write lots.
type Operator struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type operatorsFile struct {
	Operators []Operator `yaml:"operators"`
}

// LoadOperators reads the operators file. A missing file yields no operators.
func LoadOperators(path string) ([]Operator, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("operators: %w", err)
	}
	var f operatorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("operators: parse %s: %w", path, err)
	}
	return f.Operators, nil
}

// SaveOperators writes the operators file, sorted by username.
func SaveOperators(path string, ops []Operator) error {
	sort.Slice(ops, func(i, j int) bool { return ops[i].Username < ops[j].Username })
	data, err := yaml.Marshal(operatorsFile{Operators: ops})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// UpsertOperator sets the password of username, adding the operator if needed.
func UpsertOperator(ops []Operator, username, password string) ([]Operator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, err
	}
	for i := range ops {
		if strings.EqualFold(ops[i].Username, username) {
			ops[i].PasswordHash = string(hash)
			return ops, nil
		}
	}
	return append(ops, Operator{Username: username, PasswordHash: string(hash)}), nil
}

// Claims are embedded in every access token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
}

type authService struct {
	operators map[string]Operator
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthService(ops []Operator, secret string, ttl time.Duration) AuthService {
	byName := make(map[string]Operator, len(ops))
	for _, op := range ops {
		byName[strings.ToLower(op.Username)] = op
	}
	return &authService{operators: byName, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *authService) Login(_ context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	op, ok := s.operators[strings.ToLower(req.Username)]
	if !ok {
		return nil, fmt.Errorf("identifiants invalides: %w", apierror.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("identifiants invalides: %w", apierror.ErrUnauthorized)
	}

	now := s.now()
	claims := Claims{
		Username: op.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.ttl.Seconds()),
		Username:    op.Username,
	}, nil
}
