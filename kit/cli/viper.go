package cli

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option.
type Opt struct {
	DestP interface{} // pointer to the destination

	EnvVar     string
	Flag       string
	Hidden     bool
	Persistent bool
	Required   bool
	Short      rune // using rune b/c it guarantees correctness. a short must always be a string of length 1

	Default interface{}
	Desc    string
}

// NewOpt creates a new command line option.
func NewOpt(destP interface{}, flag string, dflt interface{}, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// Program parses CLI options.
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Opts are the command line/env var options to the program.
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables.
//
// This is to simplify the viper/cobra boilerplate.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Here we grab the config path search locations. A path ending in a
	// recognized extension names the config file itself; anything else is
	// treated as a directory holding a file named "config" (the viper
	// default config name), because directories can contain dots too.
	if configPath := v.GetString("CONFIG_PATH"); configPath != "" {
		switch strings.ToLower(path.Ext(configPath)) {
		case ".json", ".toml", ".yaml", ".yml":
			v.SetConfigFile(configPath)
		default:
			v.AddConfigPath(configPath)
		}
	} else {
		// defaults to looking in same directory as program running for
		// a file config.{json|toml|yaml|yml}
		v.AddConfigPath(".")
	}

	// load the config file if it exists. A file that exists but cannot be
	// read or parsed is ignored with a warning; options keep their
	// flag/env/default values.
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: ignoring config file: %v\n", err)
		}
	}

	if err := BindOptions(v, cmd, p.Opts); err != nil {
		return nil, err
	}

	return cmd, nil
}

// BindOptions adds opts to the specified command and automatically
// registers those options with viper.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	for _, o := range opts {
		flagset := cmd.Flags()
		if o.Persistent {
			flagset = cmd.PersistentFlags()
		}

		if o.Flag == "" {
			return fmt.Errorf("flag name missing for %+v", o)
		}

		envVar := o.Flag
		if o.EnvVar != "" {
			envVar = o.EnvVar
		}

		hasShort := o.Short != 0

		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			if hasShort {
				flagset.StringVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.StringVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetString(envVar)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			if hasShort {
				flagset.IntVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.IntVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetInt(envVar)
		case *int32:
			var d int32
			if o.Default != nil {
				// o.Default's type is int
				d = int32(o.Default.(int))
			}
			if hasShort {
				flagset.Int32VarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.Int32Var(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetInt32(envVar)
		case *int64:
			var d int64
			if o.Default != nil {
				switch dflt := o.Default.(type) {
				case int64:
					d = dflt
				case int:
					d = int64(dflt)
				}
			}
			if hasShort {
				flagset.Int64VarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.Int64Var(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetInt64(envVar)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			if hasShort {
				flagset.BoolVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.BoolVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetBool(envVar)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			if hasShort {
				flagset.DurationVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.DurationVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetDuration(envVar)
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			if hasShort {
				flagset.StringSliceVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.StringSliceVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetStringSlice(envVar)
		case *map[string]string:
			var d map[string]string
			if o.Default != nil {
				d = o.Default.(map[string]string)
			}
			if hasShort {
				flagset.StringToStringVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.StringToStringVar(destP, o.Flag, d, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			*destP = v.GetStringMapString(envVar)
		case *zapcore.Level:
			var l zapcore.Level
			if o.Default != nil {
				l = o.Default.(zapcore.Level)
			}
			if hasShort {
				LevelVarP(flagset, destP, o.Flag, string(o.Short), l, o.Desc)
			} else {
				LevelVar(flagset, destP, o.Flag, l, o.Desc)
			}
			mustBindPFlag(v, o.Flag, flagset)
			if s := v.GetString(envVar); s != "" {
				if err := destP.Set(s); err != nil {
					return err
				}
			}
		case pflag.Value:
			if hasShort {
				flagset.VarP(destP, o.Flag, string(o.Short), o.Desc)
			} else {
				flagset.Var(destP, o.Flag, o.Desc)
			}
			if o.Default != nil {
				if err := destP.Set(cast.ToString(o.Default)); err != nil {
					return err
				}
			}
			mustBindPFlag(v, o.Flag, flagset)
			if s := v.GetString(envVar); s != "" {
				if err := destP.Set(s); err != nil {
					return err
				}
			}
		default:
			// if you get a panic here, sorry about that!
			// anyway, go ahead and make a PR and add another type.
			panic(fmt.Errorf("unknown destination type %t", o.DestP))
		}

		// the flag must exist in the flagset before either mark call below.
		if o.Hidden {
			if err := flagset.MarkHidden(o.Flag); err != nil {
				return err
			}
		}

		if o.Required {
			// cobra only counts a required flag as provided when the flag
			// itself changed, so a value arriving through the config file
			// or an env var has to be pushed into the flagset by hand.
			if v.IsSet(envVar) {
				if err := flagset.Set(o.Flag, v.GetString(envVar)); err != nil {
					return err
				}
			}
			if err := cmd.MarkFlagRequired(o.Flag); err != nil {
				return err
			}
		}
	}

	return nil
}

func mustBindPFlag(v *viper.Viper, key string, flagset *pflag.FlagSet) {
	if err := v.BindPFlag(key, flagset.Lookup(key)); err != nil {
		panic(err)
	}
}
