// Package secret resolves credentials (Spotify client secret, JWT signing key,
// LLM API key) from SSM Parameter Store, or from environment variables in
// DEV_MODE.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches SecureString parameters.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// EnvResolver reads the variable derived from the last path segment of the
// parameter name: "/wrapped/spotify-client-secret" -> "SPOTIFY_CLIENT_SECRET".
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := EnvVarName(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// EnvVarName converts a parameter path to its environment variable name.
func EnvVarName(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// CachedResolver memoizes successful lookups so a cold start resolves each
// parameter once. Failures are not remembered.
type CachedResolver struct {
	next   Resolver
	mu     sync.Mutex
	values map[string]string
}

func NewCachedResolver(next Resolver) *CachedResolver {
	return &CachedResolver{next: next, values: make(map[string]string)}
}

func (r *CachedResolver) GetSecret(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	v, ok := r.values[name]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := r.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
	return v, nil
}

// GetOrDefault resolves name and falls back to def when the lookup fails.
func GetOrDefault(ctx context.Context, r Resolver, name, def string) (string, error) {
	v, err := r.GetSecret(ctx, name)
	if err != nil {
		return def, err
	}
	return v, nil
}
