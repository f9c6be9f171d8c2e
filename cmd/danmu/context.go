package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"danmu/internal/apiclient"
	"danmu/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() (string, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", "", err
	}
	bind := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		bind = strings.TrimSpace(*c.apiFlag)
	}
	return bind, cfg.Paths.APIToken, nil
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	bind, token, err := c.apiAddress()
	if err != nil {
		return err
	}
	client, err := apiclient.New(bind, token)
	if err != nil {
		return err
	}
	return wrapDialError(fn(client), bind)
}

func wrapDialError(err error, bind string) error {
	if err == nil {
		return nil
	}
	if apiclient.IsAPIUnavailable(err) {
		return &daemonUnreachableError{bind: bind, cause: err}
	}
	return err
}

// daemonUnreachableError reports that no daemon answered at bind.
type daemonUnreachableError struct {
	bind  string
	cause error
}

func (e *daemonUnreachableError) Error() string {
	return fmt.Sprintf("connect to daemon: nothing answered at %s; start it with `danmu start` or `danmu daemon`", e.bind)
}

func (e *daemonUnreachableError) Unwrap() error { return e.cause }

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
