package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "zdbg"
	configDirHidden string = ".zdbg"
	configFile      string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// DisableASLR launches the target with address space layout
	// randomization turned off so that breakpoint addresses are stable
	// across runs.
	DisableASLR *bool `yaml:"disable-aslr,omitempty"`

	// MaxMemoryRead is the maximum number of bytes the memory command will
	// read in one request.
	MaxMemoryRead int `yaml:"max-memory-read,omitempty"`

	// DisassembleCount is the number of instructions printed by
	// disassemble when no count is given.
	DisassembleCount int `yaml:"disassemble-count,omitempty"`

	// Prompt replaces the default "(zdbg) " prompt.
	Prompt string `yaml:"prompt,omitempty"`

	// KillOnQuit kills attached processes on quit instead of detaching.
	// Launched processes are always killed.
	KillOnQuit bool `yaml:"kill-on-quit"`
}

const (
	defaultMaxMemoryRead    = 4096
	defaultDisassembleCount = 10
)

// GetMaxMemoryRead returns the configured memory read limit or its default.
func (c *Config) GetMaxMemoryRead() int {
	if c == nil || c.MaxMemoryRead <= 0 {
		return defaultMaxMemoryRead
	}
	return c.MaxMemoryRead
}

// GetDisassembleCount returns the configured instruction count or its
// default.
func (c *Config) GetDisassembleCount() int {
	if c == nil || c.DisassembleCount <= 0 {
		return defaultDisassembleCount
	}
	return c.DisassembleCount
}

// GetDisableASLR returns whether targets should be launched with ASLR
// disabled. It defaults to true.
func (c *Config) GetDisableASLR() bool {
	if c == nil || c.DisableASLR == nil {
		return true
	}
	return *c.DisableASLR
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	return readConfig(f)
}

func readConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}

	if len(c.Aliases) == 0 {
		c.Aliases = make(map[string][]string)
	}

	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	if err := createConfigPath(); err != nil {
		return err
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for the zdbg debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Launch targets with address space randomization enabled.
# disable-aslr: false

# Maximum number of bytes read by the memory command.
# max-memory-read: 4096

# Number of instructions printed by disassemble without a count.
# disassemble-count: 10

# prompt: "(zdbg) "

# Kill attached processes on quit instead of detaching from them.
kill-on-quit: false
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return filepath.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
