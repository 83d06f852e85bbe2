package config

import (
	"bytes"
	"encoding"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/anoma/anoma/shared/fileutil"
)

// envPrefix is kept at the legacy value for compatibility with downstream
// consumers, so overrides look like ANOMA__LEDGER__SHELL__LEDGER_ADDRESS.
const envPrefix = "anoma_"

// envSeparator joins key path segments in environment overrides.
const envSeparator = "__"

// Read loads the config from the expected file under the base dir, layering
// the on-disk values and then environment overrides on top of the defaults.
// If the file doesn't exist it is generated with default values instead and
// no merge occurs. Keys that are expected but not set in the config file
// are filled in with default values.
func Read(baseDir string, chainID ChainID, mode *TendermintMode) (*Config, error) {
	filePath := FilePath(baseDir, chainID)
	m := ModeFull
	if mode != nil {
		m = *mode
	}
	if !fileutil.FileExists(filePath) {
		return Generate(baseDir, chainID, m, true)
	}

	defaults, err := encodeToml(DefaultConfig(baseDir, chainID, m))
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, &ReadError{Err: err}
	}
	if err := v.MergeConfig(bytes.NewReader(fileBytes)); err != nil {
		return nil, &ReadError{Err: errors.Wrap(err, filePath)}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envSeparator))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks()), weaklyTypedInput); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	// The live tree always reflects where it was loaded from, so relocating
	// a chain directory is safe.
	cfg.Ledger.Shell.BaseDir = baseDir
	return &cfg, nil
}

// Load is a fail-fast wrapper around Read for CLI startup: on error it
// prints the diagnostic and terminates the process with exit status 1.
// Library users should prefer Read and handle the error.
func Load(baseDir string, chainID ChainID, mode *TendermintMode) *Config {
	cfg, err := Read(baseDir, chainID, mode)
	if err != nil {
		log.Fatalf("Tried to read config in %s but failed with: %v", baseDir, err)
	}
	return cfg
}

// Generate constructs the default configuration, writes it to the expected
// file under the base dir and returns it.
func Generate(baseDir string, chainID ChainID, mode TendermintMode, replace bool) (*Config, error) {
	cfg := DefaultConfig(baseDir, chainID, mode)
	if err := cfg.Write(baseDir, chainID, replace); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write serializes the configuration to the expected file under the base
// dir. When the target exists and replace is false it fails with
// AlreadyExistingConfig and leaves the file untouched.
func (c *Config) Write(baseDir string, chainID ChainID, replace bool) error {
	filePath := FilePath(baseDir, chainID)
	if err := fileutil.MkdirAll(filepath.Dir(filePath)); err != nil {
		return &WriteError{Err: err}
	}
	if fileutil.FileExists(filePath) && !replace {
		return &AlreadyExistingConfig{Path: filePath}
	}
	encoded, err := encodeToml(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, encoded, 0o644); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		subscriptionFilterHookFunc(),
	)
}

// weaklyTypedInput lets environment overrides, which always surface as
// strings, coerce into the typed leaves.
func weaklyTypedInput(dc *mapstructure.DecoderConfig) {
	dc.WeaklyTypedInput = true
}

func subscriptionFilterHookFunc() mapstructure.DecodeHookFuncType {
	filterType := reflect.TypeOf(SubscriptionFilter{})
	return func(_, to reflect.Type, data interface{}) (interface{}, error) {
		if to != filterType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return RegexFilter(v)
		case []string:
			return WhitelistFilter(v), nil
		case []interface{}:
			topics := make([]string, 0, len(v))
			for _, t := range v {
				s, ok := t.(string)
				if !ok {
					return nil, fmt.Errorf("subscription filter whitelist entry %v is not a string", t)
				}
				topics = append(topics, s)
			}
			return WhitelistFilter(topics), nil
		default:
			return data, nil
		}
	}
}

var errValueAfterTable = errors.New("toml: simple value after table")

// valueAfterTableDiag explains the field ordering required by the TOML
// output, emitted when serialization is rejected for breaking it.
const valueAfterTableDiag = `
Error while serializing to toml. It means that some nested structure is
followed by simple fields.
This fails:
    type Nested struct {
        I int
    }

    type Broken struct {
        Nested Nested
        Simple int
    }
And this is correct:
    type Correct struct {
        Simple int
        Nested Nested
    }
`

// encodeToml serializes a config tree, first rejecting any struct whose
// simple values would end up after a table in the output.
func encodeToml(v interface{}) ([]byte, error) {
	if err := checkFieldOrder(reflect.TypeOf(v)); err != nil {
		if errors.Is(err, errValueAfterTable) {
			log.Error(valueAfterTableDiag)
		}
		return nil, &TomlError{Err: err}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, &TomlError{Err: err}
	}
	return buf.Bytes(), nil
}

var (
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	tomlMarshalerType = reflect.TypeOf((*toml.Marshaler)(nil)).Elem()
)

// checkFieldOrder walks a struct type and fails when a simple value field
// is declared after a table-valued field anywhere in the tree.
func checkFieldOrder(t reflect.Type) error {
	t = unwrap(t)
	if t.Kind() != reflect.Struct {
		return nil
	}
	lastTable := ""
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name := tomlFieldName(f)
		if name == "-" {
			continue
		}
		if isTableValued(f.Type) {
			lastTable = name
			if err := checkFieldOrder(f.Type); err != nil {
				return err
			}
		} else if lastTable != "" {
			return errors.Wrapf(errValueAfterTable,
				"field %q follows table %q in %s", name, lastTable, t.Name())
		}
	}
	return nil
}

func isTableValued(t reflect.Type) bool {
	if t.Implements(tomlMarshalerType) || reflect.PtrTo(t).Implements(tomlMarshalerType) {
		return false
	}
	if t.Implements(textMarshalerType) || reflect.PtrTo(t).Implements(textMarshalerType) {
		return false
	}
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return isTableValued(t.Elem())
	case reflect.Struct, reflect.Map:
		return true
	default:
		return false
	}
}

func unwrap(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t
}

func tomlFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if tag == "" {
		return f.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return f.Name
	}
	return name
}
