// Package blocklist decides whether a sender is refused before any
// processing happens.
package blocklist

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The configured sources of blocked senders. Addresses are matched
// exactly, patterns are glob style domains where * matches any run of
// characters.
type Config struct {
	Addresses []string `yaml:"addresses"`
	Patterns  []string `yaml:"patterns"`
}

// Reads a YAML blocklist file.
func LoadFile(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read blocklist file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "could not parse blocklist file")
	}

	return cfg, nil
}

// Merge returns a config holding the entries of both.
func (c Config) Merge(other Config) Config {
	return Config{
		Addresses: append(append([]string{}, c.Addresses...), other.Addresses...),
		Patterns:  append(append([]string{}, c.Patterns...), other.Patterns...),
	}
}

// A compiled blocklist. It is never mutated after New returns, so a
// single instance can be shared by every concurrent session.
type Matcher struct {
	addresses map[string]struct{}
	domains   []*regexp.Regexp
}

// Compiles the configuration. Every pattern is compiled exactly once here.
func New(cfg Config) (*Matcher, error) {
	m := &Matcher{
		addresses: make(map[string]struct{}, len(cfg.Addresses)),
		domains:   make([]*regexp.Regexp, 0, len(cfg.Patterns)),
	}

	for _, address := range cfg.Addresses {
		address = normalize(address)
		if address == "" {
			continue
		}
		m.addresses[address] = struct{}{}
	}

	for _, pattern := range cfg.Patterns {
		pattern = normalize(pattern)
		if pattern == "" {
			continue
		}

		compiled, err := compilePattern(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "could not compile pattern %q", pattern)
		}
		m.domains = append(m.domains, compiled)
	}

	return m, nil
}

// Returns true if the address is listed, or if its domain matches
// any of the patterns.
func (m *Matcher) IsBlocked(address string) bool {
	address = normalize(address)
	if address == "" {
		return false
	}

	if _, ok := m.addresses[address]; ok {
		return true
	}

	domain := address[strings.LastIndex(address, "@")+1:]
	for _, pattern := range m.domains {
		if pattern.MatchString(domain) {
			return true
		}
	}

	return false
}

// Turns a glob into an anchored, case insensitive expression. The
// literal segments between wildcards are quoted individually so that
// dots stay literal while * still means any run of characters.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	segments := strings.Split(pattern, "*")
	for i, segment := range segments {
		segments[i] = regexp.QuoteMeta(segment)
	}

	return regexp.Compile("(?i)^" + strings.Join(segments, ".*") + "$")
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
