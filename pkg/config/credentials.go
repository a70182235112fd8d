package config

import (
	"fmt"
	"strings"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// Credential names one platform credential and where it is read from.
type Credential struct {
	Platform engine.Platform
	EnvVar   string
	Set      bool
}

// Credentials reports the credential state of every platform, in pipeline
// order.
func (c *Config) Credentials() []Credential {
	return []Credential{
		{Platform: engine.PlatformDatabase, EnvVar: EnvNeonAPIKey, Set: c.Neon.APIKey != ""},
		{Platform: engine.PlatformCompute, EnvVar: EnvRailwayToken, Set: c.Railway.Token != ""},
		{Platform: engine.PlatformFrontend, EnvVar: EnvVercelToken, Set: c.Vercel.Token != ""},
	}
}

// RequireCredentials returns a configuration error naming every missing
// credential among platforms. With no platforms, all three are required.
func (c *Config) RequireCredentials(platforms ...engine.Platform) error {
	want := make(map[engine.Platform]bool, len(platforms))
	for _, p := range platforms {
		want[p] = true
	}

	var missing []string
	for _, cred := range c.Credentials() {
		if len(want) > 0 && !want[cred.Platform] {
			continue
		}
		if !cred.Set {
			missing = append(missing, cred.EnvVar)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return engine.NewConfigurationError(
		fmt.Sprintf("missing credentials: %s", strings.Join(missing, ", ")), nil,
	).WithCode(engine.ErrCodeMissingCredential)
}
