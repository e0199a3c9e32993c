package main

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// clientEnv resolves client settings from MARKETD_* env vars, with flag
// names mapped as `--my-param` -> MARKETD_MY_PARAM.
var clientEnv = newClientEnv()

func newClientEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(urlFlagName, defaultUrl)
	return v
}

// flagOrEnv prefers an explicit flag over the env var of the same name.
func flagOrEnv(ctx *cli.Context, name string) string {
	if value := ctx.String(name); value != "" {
		return value
	}
	return clientEnv.GetString(name)
}
