package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bind maps viper keys to flag names. Unset flags leave defaults, the config
// file and the environment in charge.
func bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("facerig: no flag %q for key %q", name, key))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}
