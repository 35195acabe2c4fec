// Package relaysecret loads configuration overrides from AWS Secrets Manager
// into Go structs.
package relaysecret

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/savaki/secrets"
	"github.com/urfave/cli/v2"
)

var SecretOpts struct {
	ConfigSecret string
}

var ConfigSecretFlag = relaycli.StringFlag("config-secret", "Secrets Manager secret holding JSON configuration overrides", &SecretOpts.ConfigSecret)

var SecretFlags = []cli.Flag{
	ConfigSecretFlag,
}

func LoadSecret(s *session.Session, secretName string, data interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	if err := manager.Decode(secretName, data); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	return nil
}
