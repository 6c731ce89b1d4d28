package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"
)

// Secrets is the YAML document stored in the AWS_SSM_PARAMETER SecureString.
type Secrets struct {
	CaspioClientID     string `yaml:"caspio_client_id"`
	CaspioClientSecret string `yaml:"caspio_client_secret"`
	SlackBotToken      string `yaml:"slack_bot_token"`
	WebhookSecret      string `yaml:"webhook_secret"`
	AuthSigningKey     string `yaml:"auth_signing_key"`
	RedisURL           string `yaml:"redis_url"`
}

// ParameterGetter is the slice of the SSM client used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient builds an SSM client from the default AWS credential chain.
func NewSSMClient(ctx context.Context) (*ssm.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// ApplySecrets overlays non-empty values from the SSM parameter onto c.
// It is a no-op when AWS_SSM_PARAMETER is unset.
func (c *Config) ApplySecrets(ctx context.Context, client ParameterGetter) error {
	if c.SSMParameter == "" {
		return nil
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.SSMParameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get parameter %s: %w", c.SSMParameter, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return fmt.Errorf("parameter %s is empty", c.SSMParameter)
	}

	var s Secrets
	if err := yaml.Unmarshal([]byte(*out.Parameter.Value), &s); err != nil {
		return fmt.Errorf("unmarshal secrets: %w", err)
	}

	overlay(&c.CaspioClientID, s.CaspioClientID)
	overlay(&c.CaspioClientSecret, s.CaspioClientSecret)
	overlay(&c.SlackBotToken, s.SlackBotToken)
	overlay(&c.WebhookSecret, s.WebhookSecret)
	overlay(&c.AuthSigningKey, s.AuthSigningKey)
	overlay(&c.RedisURL, s.RedisURL)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
