package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// toggleFlag implements pflag.Value; BindOptions routes such destinations
// through the flagset's generic Var hooks.
type toggleFlag bool

func (c toggleFlag) String() string {
	if c == true {
		return "on"
	}
	return "off"
}

func (c *toggleFlag) Set(s string) error {
	if s == "on" {
		*c = true
	} else {
		*c = false
	}

	return nil
}

func (c *toggleFlag) Type() string {
	return "toggle"
}

func ExampleNewCommand() {
	var storePath string
	var batchSize int
	var maxRetries int32
	var lockWaitNs int64
	var dryRun bool
	var lockTimeout time.Duration
	var domains []string
	var sealMode toggleFlag
	var logLevel zapcore.Level
	cmd, err := NewCommand(viper.New(), &Program{
		Run: func() error {
			fmt.Println(storePath)
			for i := 0; i < batchSize; i++ {
				fmt.Printf("%d\n", i)
			}
			fmt.Println(lockWaitNs - int64(maxRetries))
			fmt.Println(dryRun)
			fmt.Println(lockTimeout)
			fmt.Println(domains)
			fmt.Println(sealMode)
			fmt.Println(logLevel.String())
			return nil
		},
		Name: "migratectl",
		Opts: []Opt{
			{
				DestP:   &storePath,
				Flag:    "store-path",
				Default: "/var/lib/grex/grex.bolt",
				Desc:    "path to the backing store",
			},
			{
				DestP:   &batchSize,
				Flag:    "batch-size",
				Default: 2,
				Desc:    "keys to rewrite per transaction",
			},
			{
				DestP:   &maxRetries,
				Flag:    "max-retries",
				Default: math.MaxInt32,
				Desc:    "limited size number",
			},
			{
				DestP:   &lockWaitNs,
				Flag:    "lock-wait-ns",
				Default: math.MaxInt64,
				Desc:    "explicitly expanded-size number",
			},
			{
				DestP:   &dryRun,
				Flag:    "dry-run",
				Default: true,
				Desc:    "report without writing",
			},
			{
				DestP:   &lockTimeout,
				Flag:    "lock-timeout",
				Default: time.Minute,
				Desc:    "how long to wait on the store lock",
			},
			{
				DestP:   &domains,
				Flag:    "domains",
				Default: []string{"general", "secure"},
				Desc:    "storage domains to touch",
			},
			{
				DestP:   &sealMode,
				Flag:    "seal-mode",
				Default: "on",
				Desc:    "things that implement pflag.Value",
			},
			{
				DestP:   &logLevel,
				Flag:    "log-level",
				Default: zapcore.WarnLevel,
			},
		},
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return
	}

	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	// Output:
	// /var/lib/grex/grex.bolt
	// 0
	// 1
	// 9223372034707292160
	// true
	// 1m0s
	// [general secure]
	// on
	// warn
}

func Test_NewProgram(t *testing.T) {
	config := map[string]string{
		// config values should be same as flags
		"store":     "bolt",
		"bolt-path": "/var/lib/grex/grex.bolt",
		"max-batch": "2147483647",
		"lock-wait": "9223372036854775807",
		"log-level": "debug",
	}

	tests := []struct {
		name      string
		envVarVal string
		args      []string
		expected  string
	}{
		{
			name:     "no vals reads from config",
			expected: "bolt",
		},
		{
			name:      "reads from env var",
			envVarVal: "memory",
			expected:  "memory",
		},
		{
			name:     "reads from flag",
			args:     []string{"--store=sqlite"},
			expected: "sqlite",
		},
		{
			name:      "flag has highest precedence",
			envVarVal: "memory",
			args:      []string{"--store=sqlite"},
			expected:  "sqlite",
		},
	}

	for _, tt := range tests {
		for _, writer := range configWriters {
			fn := func(t *testing.T) {
				testDir := t.TempDir()

				confFile, err := writer.writeFn(testDir, config)
				require.NoError(t, err)

				defer setEnvVar("TEST_CONFIG_PATH", confFile)()

				if tt.envVarVal != "" {
					defer setEnvVar("TEST_STORE", tt.envVarVal)()
				}

				var store string
				var boltPath string
				var maxBatch int32
				var lockWait int64
				var logLevel zapcore.Level
				program := &Program{
					Name: "test",
					Opts: []Opt{
						{
							DestP:    &store,
							Flag:     "store",
							Required: true,
						},
						{
							DestP: &boltPath,
							Flag:  "bolt-path",
						},
						{
							DestP: &maxBatch,
							Flag:  "max-batch",
						},
						{
							DestP: &lockWait,
							Flag:  "lock-wait",
						},
						{
							DestP: &logLevel,
							Flag:  "log-level",
						},
					},
					Run: func() error { return nil },
				}

				cmd, err := NewCommand(viper.New(), program)
				require.NoError(t, err)
				cmd.SetArgs(append([]string{}, tt.args...))
				require.NoError(t, cmd.Execute())

				require.Equal(t, tt.expected, store)
				assert.Equal(t, "/var/lib/grex/grex.bolt", boltPath)
				assert.Equal(t, int32(math.MaxInt32), maxBatch)
				assert.Equal(t, int64(math.MaxInt64), lockWait)
				assert.Equal(t, zapcore.DebugLevel, logLevel)
			}

			t.Run(fmt.Sprintf("%s_%s", tt.name, writer.ext), fn)
		}
	}
}

func setEnvVar(key, val string) func() {
	old := os.Getenv(key)
	os.Setenv(key, val)
	return func() {
		os.Setenv(key, old)
	}
}

type configWriter func(dir string, config interface{}) (string, error)
type labeledWriter struct {
	ext     string
	writeFn configWriter
}

var configWriters = []labeledWriter{
	{ext: "json", writeFn: writeJsonConfig},
	{ext: "toml", writeFn: writeTomlConfig},
	{ext: "yml", writeFn: yamlConfigWriter(true)},
	{ext: "yaml", writeFn: yamlConfigWriter(false)},
}

func writeJsonConfig(dir string, config interface{}) (string, error) {
	b, err := json.Marshal(config)
	if err != nil {
		return "", err
	}
	confFile := path.Join(dir, "config.json")
	if err := os.WriteFile(confFile, b, os.ModePerm); err != nil {
		return "", err
	}
	return confFile, nil
}

func writeTomlConfig(dir string, config interface{}) (string, error) {
	confFile := path.Join(dir, "config.toml")
	w, err := os.OpenFile(confFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.ModePerm)
	if err != nil {
		return "", err
	}
	defer w.Close()

	if err := toml.NewEncoder(w).Encode(config); err != nil {
		return "", err
	}

	return confFile, nil
}

func yamlConfigWriter(shortExt bool) configWriter {
	fileName := "config.yaml"
	if shortExt {
		fileName = "config.yml"
	}

	return func(dir string, config interface{}) (string, error) {
		confFile := path.Join(dir, fileName)
		w, err := os.OpenFile(confFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.ModePerm)
		if err != nil {
			return "", err
		}
		defer w.Close()

		if err := yaml.NewEncoder(w).Encode(config); err != nil {
			return "", err
		}

		return confFile, nil
	}
}

func Test_RequiredFlag(t *testing.T) {
	var passphraseFile string
	program := &Program{
		Name: "test",
		Opts: []Opt{
			{
				DestP:    &passphraseFile,
				Flag:     "passphrase-file",
				Required: true,
			},
		},
	}

	cmd, err := NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SetArgs([]string{})
	err = cmd.Execute()
	require.Error(t, err)
	require.Equal(t, `required flag(s) "passphrase-file" not set`, err.Error())
}

func Test_ConfigPrecedence(t *testing.T) {
	jsonConfig := map[string]interface{}{"log-level": zapcore.DebugLevel}
	tomlConfig := map[string]interface{}{"log-level": zapcore.InfoLevel}
	yamlConfig := map[string]interface{}{"log-level": zapcore.WarnLevel}
	ymlConfig := map[string]interface{}{"log-level": zapcore.ErrorLevel}

	tests := []struct {
		name          string
		writeJson     bool
		writeToml     bool
		writeYaml     bool
		writeYml      bool
		expectedLevel zapcore.Level
	}{
		{
			name:          "JSON is used if present",
			writeJson:     true,
			writeToml:     true,
			writeYaml:     true,
			writeYml:      true,
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "TOML is used if no JSON present",
			writeJson:     false,
			writeToml:     true,
			writeYaml:     true,
			writeYml:      true,
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "YAML is used if no JSON or TOML present",
			writeJson:     false,
			writeToml:     false,
			writeYaml:     true,
			writeYml:      true,
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "YML is used if no other option present",
			writeJson:     false,
			writeToml:     false,
			writeYaml:     false,
			writeYml:      true,
			expectedLevel: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		fn := func(t *testing.T) {
			testDir := t.TempDir()
			defer setEnvVar("TEST_CONFIG_PATH", testDir)()

			if tt.writeJson {
				_, err := writeJsonConfig(testDir, jsonConfig)
				require.NoError(t, err)
			}
			if tt.writeToml {
				_, err := writeTomlConfig(testDir, tomlConfig)
				require.NoError(t, err)
			}
			if tt.writeYaml {
				_, err := yamlConfigWriter(false)(testDir, yamlConfig)
				require.NoError(t, err)
			}
			if tt.writeYml {
				_, err := yamlConfigWriter(true)(testDir, ymlConfig)
				require.NoError(t, err)
			}

			var logLevel zapcore.Level
			program := &Program{
				Name: "test",
				Opts: []Opt{
					{
						DestP: &logLevel,
						Flag:  "log-level",
					},
				},
				Run: func() error { return nil },
			}

			cmd, err := NewCommand(viper.New(), program)
			require.NoError(t, err)
			cmd.SetArgs([]string{})
			require.NoError(t, cmd.Execute())

			require.Equal(t, tt.expectedLevel, logLevel)
		}

		t.Run(tt.name, fn)
	}
}

func Test_ConfigPathDotDirectory(t *testing.T) {
	testDir := t.TempDir()

	tests := []struct {
		name string
		dir  string
	}{
		{
			name: "dot at start",
			dir:  ".directory",
		},
		{
			name: "dot in middle",
			dir:  "config.d",
		},
		{
			name: "dot at end",
			dir:  "forgotmyextension.",
		},
	}

	config := map[string]string{
		"store": "bolt",
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			configDir := filepath.Join(testDir, tc.dir)
			require.NoError(t, os.Mkdir(configDir, 0700))

			_, err := writeTomlConfig(configDir, config)
			require.NoError(t, err)
			defer setEnvVar("TEST_CONFIG_PATH", configDir)()

			var store string
			program := &Program{
				Name: "test",
				Opts: []Opt{
					{
						DestP: &store,
						Flag:  "store",
					},
				},
				Run: func() error { return nil },
			}

			cmd, err := NewCommand(viper.New(), program)
			require.NoError(t, err)
			cmd.SetArgs([]string{})
			require.NoError(t, cmd.Execute())

			require.Equal(t, "bolt", store)
		})
	}
}

func Test_LoadConfigCwd(t *testing.T) {
	testDir := t.TempDir()

	pwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(pwd)

	require.NoError(t, os.Chdir(testDir))

	config := map[string]string{
		"store": "bolt",
	}
	_, err = writeJsonConfig(testDir, config)
	require.NoError(t, err)

	var store string
	program := &Program{
		Name: "test",
		Opts: []Opt{
			{
				DestP: &store,
				Flag:  "store",
			},
		},
		Run: func() error { return nil },
	}

	cmd, err := NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "bolt", store)
}

func Test_BrokenConfigUsesDefaults(t *testing.T) {
	testDir := t.TempDir()

	confFile := filepath.Join(testDir, "config.json")
	require.NoError(t, os.WriteFile(confFile, []byte(`{"store": "sqlite"`), 0600))
	defer setEnvVar("TEST_CONFIG_PATH", confFile)()

	var store string
	program := &Program{
		Name: "test",
		Opts: []Opt{
			{
				DestP:   &store,
				Flag:    "store",
				Default: "bolt",
			},
		},
		Run: func() error { return nil },
	}

	cmd, err := NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "bolt", store)
}
