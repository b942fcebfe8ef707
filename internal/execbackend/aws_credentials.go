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

package execbackend

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
)

// AssumeRoleCredentials vends a short-lived session token for a cross-account
// execution backend: an AWSEM/Tibanna-style backend commonly runs jobs in a
// separate AWS account from the metadata store, reached by assuming an IAM
// role rather than holding that account's long-lived keys locally.
type AssumeRoleCredentials struct {
	client  *sts.Client
	roleARN string
}

// NewAssumeRoleCredentials loads the ambient AWS credential chain (env vars,
// shared config, instance/task role) for the given region and prepares to
// assume roleARN on demand.
func NewAssumeRoleCredentials(ctx context.Context, region, roleARN string) (*AssumeRoleCredentials, error) {
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, mwferrors.Wrap(err, "loading AWS credential chain")
	}

	return &AssumeRoleCredentials{
		client:  sts.NewFromConfig(cfg),
		roleARN: roleARN,
	}, nil
}

// Token assumes the configured role and returns the assumed-role
// session's temporary session token as a bearer-style token string,
// along with its expiry, so the caller can refresh before it lapses.
func (a *AssumeRoleCredentials) Token(ctx context.Context) (token string, expiresAt time.Time, err error) {
	out, err := a.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(a.roleARN),
		RoleSessionName: aws.String("mwfctl-reconciler"),
		DurationSeconds: aws.Int32(3600),
	})
	if err != nil {
		return "", time.Time{}, &mwferrors.ServiceError{Service: "sts", Message: "assuming execution backend role", Cause: err}
	}

	creds := out.Credentials
	return aws.ToString(creds.SessionToken), aws.ToTime(creds.Expiration), nil
}
