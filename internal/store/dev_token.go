// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/auth"
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

// devTokenSource mints a locally-signed JWT bearer token on each call,
// used in dev/test mode against a store that does not have a full OAuth2
// identity provider in front of it.
type devTokenSource struct {
	cfg     auth.JWTConfig
	subject string
}

// NewDevTokenSource returns a TokenSource that mints a short-lived HS256
// bearer token locally, for local/offline development against the sqlite
// store.
func NewDevTokenSource(secret []byte, subject string) TokenSource {
	return devTokenSource{
		cfg:     auth.JWTConfig{Secret: secret, Issuer: "mwfctl-dev"},
		subject: subject,
	}
}

func (s devTokenSource) Token(ctx context.Context) (string, error) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: s.subject},
		UserID:           s.subject,
	}
	token, err := auth.GenerateJWT(claims, s.cfg)
	if err != nil {
		return "", &mwferrors.ServiceError{Service: "store", Message: "failed to mint dev token", Cause: err}
	}
	return token, nil
}
