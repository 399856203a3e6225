// Package config loads and validates ktp-tester settings.
//
// Settings come from a YAML file (gopkg.in/yaml.v3) or a JSON file that may
// contain comments and trailing commas (github.com/tidwall/jsonc strips them
// before encoding/json parses the result). Every field has a default, so a
// missing config file is not an error. Command-line flags override the
// loaded values in the cli package.
package config
